package models

import (
	"time"
)

// TaskStatus is the lifecycle state of a DocumentTask.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// BatchStatus is the lifecycle state of a BatchJob.
type BatchStatus string

const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// DocumentTask represents one contract attachment queued for processing.
//
// Exactly one of ProcessedData / ErrorMessage is set once the task is
// terminal; StartedAt is non-nil iff the task has left the queued state.
type DocumentTask struct {
	ID               string     `db:"id" json:"id"`
	ContractNoticeID string     `db:"contract_notice_id" json:"contract_notice_id"`
	DocumentURL      string     `db:"document_url" json:"document_url"`
	Filename         string     `db:"filename" json:"filename"`
	LocalFilePath    string     `db:"local_file_path" json:"local_file_path,omitempty"`
	Status           TaskStatus `db:"status" json:"status"`
	QueuedAt         time.Time  `db:"queued_at" json:"queued_at"`
	StartedAt        *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	FailedAt         *time.Time `db:"failed_at" json:"failed_at,omitempty"`
	RetryCount       int        `db:"retry_count" json:"retry_count"`
	MaxRetries       int        `db:"max_retries" json:"max_retries"`
	ProcessedData    []byte     `db:"processed_data" json:"processed_data,omitempty"`
	ErrorMessage     string     `db:"error_message" json:"error_message,omitempty"`
}

// Terminal reports whether the task has reached a final state.
func (t *DocumentTask) Terminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}

// RetryExhausted reports whether the bounded retry budget is spent.
func (t *DocumentTask) RetryExhausted() bool {
	return t.RetryCount >= t.MaxRetries
}

// BatchJob is bookkeeping for one orchestration run. It is written once
// at the start of a run and finalized once at the end; individual task
// correctness never depends on it.
type BatchJob struct {
	ID               string      `db:"id" json:"id"`
	Status           BatchStatus `db:"status" json:"status"`
	StartedAt        time.Time   `db:"started_at" json:"started_at"`
	CompletedAt      *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
	RecordsProcessed int         `db:"records_processed" json:"records_processed"`
	ErrorsCount      int         `db:"errors_count" json:"errors_count"`
}

// QueueStats is a point-in-time count of tasks per status.
type QueueStats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}
