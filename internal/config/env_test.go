package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/procura_test")
	t.Setenv("SUMMARIZER_API_URL", "http://localhost:9999/v1/chat/completions")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)

	cfg := LoadConfig()

	if cfg.DocumentSlots != 10 {
		t.Errorf("Expected 10 document slots, got %d", cfg.DocumentSlots)
	}
	if cfg.ConvertSlots != 2 {
		t.Errorf("Expected 2 convert slots, got %d", cfg.ConvertSlots)
	}
	if cfg.TaskTimeout != 3*time.Minute {
		t.Errorf("Expected 3m task timeout, got %s", cfg.TaskTimeout)
	}
	if cfg.MinWords != 100 {
		t.Errorf("Expected min words 100, got %d", cfg.MinWords)
	}
	if cfg.OcrFactor != 2 {
		t.Errorf("Expected OCR factor 2, got %d", cfg.OcrFactor)
	}
	if cfg.ReapAfter != 20*time.Minute {
		t.Errorf("Expected 20m reap threshold, got %s", cfg.ReapAfter)
	}
	if !cfg.OcrEnabled {
		t.Error("Expected OCR enabled by default")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DOCUMENT_SLOTS", "4")
	t.Setenv("OCR_FACTOR", "3")
	t.Setenv("TASK_TIMEOUT", "90s")
	t.Setenv("OCR_ENABLED", "false")

	cfg := LoadConfig()

	if cfg.DocumentSlots != 4 {
		t.Errorf("Expected 4 document slots, got %d", cfg.DocumentSlots)
	}
	if cfg.OcrFactor != 3 {
		t.Errorf("Expected OCR factor 3, got %d", cfg.OcrFactor)
	}
	if cfg.TaskTimeout != 90*time.Second {
		t.Errorf("Expected 90s task timeout, got %s", cfg.TaskTimeout)
	}
	if cfg.OcrEnabled {
		t.Error("Expected OCR disabled")
	}
}

func TestGetEnvHelpersFallBackOnBadValues(t *testing.T) {
	t.Setenv("BAD_INT", "not-a-number")
	t.Setenv("BAD_BOOL", "maybe")
	t.Setenv("BAD_DURATION", "soon")

	if got := getEnvInt("BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt = %d, want fallback 7", got)
	}
	if got := getEnvBool("BAD_BOOL", true); got != true {
		t.Errorf("getEnvBool = %t, want fallback true", got)
	}
	if got := getEnvDuration("BAD_DURATION", time.Minute); got != time.Minute {
		t.Errorf("getEnvDuration = %s, want fallback 1m", got)
	}
}
