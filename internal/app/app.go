package app

import (
	"context"
	"fmt"
	"time"

	"github.com/markdave123-py/Procura/internal/config"
	"github.com/markdave123-py/Procura/internal/core"
	"github.com/markdave123-py/Procura/internal/core/convert"
	db "github.com/markdave123-py/Procura/internal/core/database"
	"github.com/markdave123-py/Procura/internal/core/extract"
	"github.com/markdave123-py/Procura/internal/core/index"
	"github.com/markdave123-py/Procura/internal/core/llm"
	"github.com/markdave123-py/Procura/internal/core/objectstore"
	"github.com/markdave123-py/Procura/internal/core/ocr"
	"github.com/markdave123-py/Procura/internal/core/pipeline"
	"github.com/markdave123-py/Procura/internal/core/summarize"
	"github.com/markdave123-py/Procura/internal/logger"
	"github.com/markdave123-py/Procura/internal/telemetry"
)

type App struct {
	Store        *db.DatabaseClient
	Converter    *convert.Converter
	Orchestrator *pipeline.Orchestrator
	Reaper       *pipeline.Reaper
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	store, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "database initialized and ready")

	// The archive bucket is optional; without credentials we still
	// process and index, we just skip the durable copy.
	var archiver core.Archiver
	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		s3, err := objectstore.NewS3Archiver(appCtx, cfg)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the archiver, %w", err)
		}
		archiver = s3
		logger.Info(ctx, "archive client initialized and ready")
	} else {
		logger.Warn(ctx, "AWS credentials not set, archiving disabled")
	}

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	indexer := index.NewVectorIndexer(embedder, store)

	converter := convert.NewConverter(cfg.ConvertTool, cfg.ConvertSlots, convert.NewExecRunner())
	extractor := extract.NewDocconvExtractor(cfg.MinWords)

	var ocrEngine core.OcrEngine
	if cfg.OcrEnabled {
		ocrEngine = ocr.NewDefaultEngine(cfg.OcrWorkers, cfg.OcrDPI)
	} else {
		logger.Warn(ctx, "OCR fallback disabled by configuration")
	}

	summarizer := summarize.NewClient(cfg.SummarizerURL, cfg.SummarizerKey, cfg.SummarizerModel, cfg.SummarizerTimeout)
	resolver := pipeline.NewSourceResolver(cfg.DownloadDir)

	orch := pipeline.NewOrchestrator(store, resolver, converter, extractor, ocrEngine, summarizer, indexer, archiver, metrics, pipeline.Options{
		DocumentSlots: cfg.DocumentSlots,
		BatchLimit:    cfg.BatchLimit,
		TaskTimeout:   cfg.TaskTimeout,
		MinWords:      cfg.MinWords,
		OcrFactor:     cfg.OcrFactor,
	})

	reaper := pipeline.NewReaper(store, cfg.ReapAfter, cfg.ReapInterval)

	server := NewServer(cfg, store, orch, reaper)

	return &App{
		Store:        store,
		Converter:    converter,
		Orchestrator: orch,
		Reaper:       reaper,
		Server:       server,
	}, nil
}

func (a *App) Close() {
	if a.Store != nil {
		_ = a.Store.Close()
	}
}
