package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	Port        string

	JWTSecret         string
	AdminEmail        string
	AdminPasswordHash string

	SummarizerURL     string
	SummarizerKey     string
	SummarizerModel   string
	SummarizerTimeout time.Duration

	AIAPIKey   string
	EmbedModel string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	DownloadDir string
	ConvertTool string

	DocumentSlots int
	ConvertSlots  int
	BatchLimit    int
	TaskTimeout   time.Duration
	PollInterval  time.Duration

	MinWords   int
	OcrEnabled bool
	OcrWorkers int
	OcrDPI     int
	OcrFactor  int

	ReapAfter    time.Duration
	ReapInterval time.Duration

	LogLevel  string
	LogFormat string
}

// LoadConfig loads the environment variables and returns config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Port:        getEnv("PORT", "8080"),

		JWTSecret:         getEnv("JWT_SECRET", ""),
		AdminEmail:        getEnv("ADMIN_EMAIL", ""),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		SummarizerURL:     getEnv("SUMMARIZER_API_URL", ""),
		SummarizerKey:     getEnv("SUMMARIZER_API_KEY", ""),
		SummarizerModel:   getEnv("SUMMARIZER_MODEL", "anthropic/claude-3-haiku"),
		SummarizerTimeout: getEnvDuration("SUMMARIZER_TIMEOUT", 150*time.Second),

		AIAPIKey:   getEnv("GEMINI_API_KEY", ""),
		EmbedModel: getEnv("EMBED_MODEL", "text-embedding-004"),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "procura-processed"),

		DownloadDir: getEnv("DOWNLOAD_DIR", "queue_documents"),
		ConvertTool: getEnv("CONVERT_TOOL", "soffice"),

		DocumentSlots: getEnvInt("DOCUMENT_SLOTS", 10),
		ConvertSlots:  getEnvInt("CONVERT_SLOTS", 2),
		BatchLimit:    getEnvInt("BATCH_LIMIT", 200),
		TaskTimeout:   getEnvDuration("TASK_TIMEOUT", 3*time.Minute),
		PollInterval:  getEnvDuration("POLL_INTERVAL", 30*time.Second),

		MinWords:   getEnvInt("MIN_WORDS", 100),
		OcrEnabled: getEnvBool("OCR_ENABLED", true),
		OcrWorkers: getEnvInt("OCR_WORKERS", 8),
		OcrDPI:     getEnvInt("OCR_DPI", 300),
		OcrFactor:  getEnvInt("OCR_FACTOR", 2),

		ReapAfter:    getEnvDuration("REAP_AFTER", 20*time.Minute),
		ReapInterval: getEnvDuration("REAP_INTERVAL", 5*time.Minute),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.SummarizerURL == "" {
		log.Fatal("SUMMARIZER_API_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
