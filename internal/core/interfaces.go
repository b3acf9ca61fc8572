package core

import (
	"context"
	"time"

	"github.com/markdave123-py/Procura/internal/models"
)

// TaskStore defines all persistence operations the pipeline needs.
// It abstracts Postgres so higher layers never depend on a specific DB.
// Updates are atomic single-row writes; concurrent updates to different
// tasks never contend.
type TaskStore interface {
	EnqueueTask(ctx context.Context, task *models.DocumentTask) (*models.DocumentTask, error)
	GetTask(ctx context.Context, id string) (*models.DocumentTask, error)
	ListQueuedTasks(ctx context.Context, limit int) ([]models.DocumentTask, error)

	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, processedData []byte) error
	MarkFailed(ctx context.Context, id string, errMsg string) error

	// FindStuckTasks returns processing tasks whose started_at is older
	// than the given age. ResetStuckTask requeues one of them, clearing
	// started_at and incrementing retry_count.
	FindStuckTasks(ctx context.Context, olderThan time.Duration) ([]models.DocumentTask, error)
	ResetStuckTask(ctx context.Context, id string, reason string) error

	CreateBatchJob(ctx context.Context, job *models.BatchJob) error
	GetBatchJob(ctx context.Context, id string) (*models.BatchJob, error)
	CompleteBatchJob(ctx context.Context, id string, status models.BatchStatus, processed, errCount int) error
	FindStaleBatchJobs(ctx context.Context, olderThan time.Duration) ([]models.BatchJob, error)

	QueueStats(ctx context.Context) (*models.QueueStats, error)

	Close() error
}

// ExtractResult is the outcome of one text-extraction pass. WordCount is
// the quality signal used to decide whether the OCR fallback is needed.
type ExtractResult struct {
	Text      string
	WordCount int
	Method    string // "structural" or "ocr"
}

// Converter turns a source document into the canonical format (PDF) and
// returns the canonical file path. Already-canonical inputs pass through.
type Converter interface {
	Convert(ctx context.Context, sourcePath string) (string, error)
}

// Extractor performs structural text extraction from a canonical file.
type Extractor interface {
	Extract(ctx context.Context, canonicalPath string) (*ExtractResult, error)
}

// OcrEngine recognizes text from a canonical file by rasterizing its
// pages. Results are reassembled in page order.
type OcrEngine interface {
	Recognize(ctx context.Context, canonicalPath string) (string, error)
}

// SummaryResult is the structured output of the summarization service.
// Fixed / Partial / Fallback record whether the payload parsed cleanly,
// was repaired, or was replaced with an error-bearing fallback, so
// downstream consumers can tell clean parses from healed ones.
type SummaryResult struct {
	Data       map[string]any `json:"data"`
	Fixed      bool           `json:"fixed,omitempty"`
	Partial    bool           `json:"partial,omitempty"`
	Fallback   bool           `json:"fallback,omitempty"`
	ParseError string         `json:"parse_error,omitempty"`
}

// Summarizer sends extracted text to the external summarization service.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (*SummaryResult, error)
}

// Indexer pushes a processed document into the search store, keyed by
// contract notice id + filename. Idempotent: re-indexing overwrites.
type Indexer interface {
	Index(ctx context.Context, noticeID, filename, content string, metadata map[string]string) error
}

// VectorStore is the persistence half of the Indexer.
type VectorStore interface {
	UpsertDocumentVector(ctx context.Context, key, content string, embedding []float32, metadata map[string]string) error
}

// EmbeddingProvider produces an embedding for one text.
type EmbeddingProvider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Archiver stores the processed-result payload durably (best effort).
type Archiver interface {
	Archive(ctx context.Context, noticeID, filename string, payload []byte) error
}
