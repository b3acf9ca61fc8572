package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/Procura/internal/config"
	"github.com/markdave123-py/Procura/internal/core"
	"github.com/markdave123-py/Procura/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.TaskStore = (*DatabaseClient)(nil)
var _ core.VectorStore = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for a background worker; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// EnqueueTask inserts a new queued task. If a task for the same notice id
// and document URL already exists, the existing row is returned instead of
// creating a duplicate.
func (c *DatabaseClient) EnqueueTask(ctx context.Context, task *models.DocumentTask) (*models.DocumentTask, error) {
	if task == nil {
		return nil, errors.New("nil task")
	}

	// The partial unique index on (contract_notice_id, document_url) makes
	// this atomic under concurrent enqueues; rows with an empty URL are
	// exempt and always insert.
	const q = `
		INSERT INTO document_tasks
			(id, contract_notice_id, document_url, filename, local_file_path, status, queued_at, retry_count, max_retries)
		VALUES
			($1, $2, $3, $4, $5, $6, COALESCE($7, now()), $8, $9)
		ON CONFLICT (contract_notice_id, document_url) WHERE document_url <> '' DO NOTHING
	`
	res, err := c.db.ExecContext(ctx, q,
		task.ID, task.ContractNoticeID, task.DocumentURL, task.Filename, task.LocalFilePath,
		models.TaskQueued, task.QueuedAt, task.RetryCount, task.MaxRetries)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		const dupQ = `
			SELECT id FROM document_tasks
			WHERE contract_notice_id = $1 AND document_url = $2
		`
		var existingID string
		if err := c.db.QueryRowContext(ctx, dupQ, task.ContractNoticeID, task.DocumentURL).Scan(&existingID); err != nil {
			return nil, err
		}
		return c.GetTask(ctx, existingID)
	}
	return c.GetTask(ctx, task.ID)
}

const taskColumns = `
	id, contract_notice_id, document_url, filename, COALESCE(local_file_path, ''),
	status, queued_at, started_at, completed_at, failed_at,
	retry_count, max_retries, processed_data, COALESCE(error_message, '')
`

func scanTask(row interface{ Scan(...any) error }) (*models.DocumentTask, error) {
	var t models.DocumentTask
	err := row.Scan(
		&t.ID, &t.ContractNoticeID, &t.DocumentURL, &t.Filename, &t.LocalFilePath,
		&t.Status, &t.QueuedAt, &t.StartedAt, &t.CompletedAt, &t.FailedAt,
		&t.RetryCount, &t.MaxRetries, &t.ProcessedData, &t.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *DatabaseClient) GetTask(ctx context.Context, id string) (*models.DocumentTask, error) {
	q := `SELECT ` + taskColumns + ` FROM document_tasks WHERE id = $1`
	t, err := scanTask(c.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// ListQueuedTasks returns queued tasks in admission order, oldest first.
func (c *DatabaseClient) ListQueuedTasks(ctx context.Context, limit int) ([]models.DocumentTask, error) {
	q := `
		SELECT ` + taskColumns + `
		FROM document_tasks
		WHERE status = $1
		ORDER BY queued_at ASC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, q, models.TaskQueued, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) MarkProcessing(ctx context.Context, id string) error {
	const q = `
		UPDATE document_tasks
		SET status = $2, started_at = now()
		WHERE id = $1 AND status = $3
	`
	res, err := c.db.ExecContext(ctx, q, id, models.TaskProcessing, models.TaskQueued)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("task not queued: %s", id)
	}
	return nil
}

func (c *DatabaseClient) MarkCompleted(ctx context.Context, id string, processedData []byte) error {
	const q = `
		UPDATE document_tasks
		SET status = $2, completed_at = now(), processed_data = $3, error_message = NULL
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, models.TaskCompleted, processedData)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("task not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) MarkFailed(ctx context.Context, id string, errMsg string) error {
	const q = `
		UPDATE document_tasks
		SET status = $2, failed_at = now(), error_message = $3, processed_data = NULL
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, models.TaskFailed, errMsg)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("task not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) FindStuckTasks(ctx context.Context, olderThan time.Duration) ([]models.DocumentTask, error) {
	q := `
		SELECT ` + taskColumns + `
		FROM document_tasks
		WHERE status = $1 AND started_at < now() - $2::interval
		ORDER BY started_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, models.TaskProcessing, olderThan.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ResetStuckTask requeues a wedged task. The status guard makes the sweep
// idempotent and safe to run concurrently with the orchestrator.
func (c *DatabaseClient) ResetStuckTask(ctx context.Context, id string, reason string) error {
	const q = `
		UPDATE document_tasks
		SET status = $2, started_at = NULL, retry_count = retry_count + 1, error_message = $3
		WHERE id = $1 AND status = $4
	`
	_, err := c.db.ExecContext(ctx, q, id, models.TaskQueued, reason, models.TaskProcessing)
	return err
}

func (c *DatabaseClient) CreateBatchJob(ctx context.Context, job *models.BatchJob) error {
	if job == nil {
		return errors.New("nil batch job")
	}
	const q = `
		INSERT INTO batch_jobs (id, status, started_at, records_processed, errors_count)
		VALUES ($1, $2, COALESCE($3, now()), $4, $5)
	`
	_, err := c.db.ExecContext(ctx, q, job.ID, job.Status, job.StartedAt, job.RecordsProcessed, job.ErrorsCount)
	return err
}

func (c *DatabaseClient) GetBatchJob(ctx context.Context, id string) (*models.BatchJob, error) {
	const q = `
		SELECT id, status, started_at, completed_at, records_processed, errors_count
		FROM batch_jobs WHERE id = $1
	`
	var j models.BatchJob
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&j.ID, &j.Status, &j.StartedAt, &j.CompletedAt, &j.RecordsProcessed, &j.ErrorsCount,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (c *DatabaseClient) CompleteBatchJob(ctx context.Context, id string, status models.BatchStatus, processed, errCount int) error {
	const q = `
		UPDATE batch_jobs
		SET status = $2, completed_at = now(), records_processed = $3, errors_count = $4
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status, processed, errCount)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("batch job not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) FindStaleBatchJobs(ctx context.Context, olderThan time.Duration) ([]models.BatchJob, error) {
	const q = `
		SELECT id, status, started_at, completed_at, records_processed, errors_count
		FROM batch_jobs
		WHERE status = $1 AND started_at < now() - $2::interval
	`
	rows, err := c.db.QueryContext(ctx, q, models.BatchRunning, olderThan.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.BatchJob
	for rows.Next() {
		var j models.BatchJob
		if err := rows.Scan(&j.ID, &j.Status, &j.StartedAt, &j.CompletedAt, &j.RecordsProcessed, &j.ErrorsCount); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) QueueStats(ctx context.Context) (*models.QueueStats, error) {
	const q = `SELECT status, count(*) FROM document_tasks GROUP BY status`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats models.QueueStats
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		switch models.TaskStatus(status) {
		case models.TaskQueued:
			stats.Queued = n
		case models.TaskProcessing:
			stats.Processing = n
		case models.TaskCompleted:
			stats.Completed = n
		case models.TaskFailed:
			stats.Failed = n
		}
		stats.Total += n
	}
	return &stats, rows.Err()
}

// UpsertDocumentVector writes one row into the search index, overwriting
// any previous content for the same document key.
func (c *DatabaseClient) UpsertDocumentVector(ctx context.Context, key, content string, embedding []float32, metadata map[string]string) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	const q = `
		INSERT INTO document_index (document_key, content, embedding, metadata, indexed_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (document_key)
		DO UPDATE SET content = EXCLUDED.content,
		              embedding = EXCLUDED.embedding,
		              metadata = EXCLUDED.metadata,
		              indexed_at = now()
	`
	_, err = c.db.ExecContext(ctx, q, key, content, pgvector.NewVector(embedding), meta)
	return err
}
