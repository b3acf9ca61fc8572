package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/markdave123-py/Procura/internal/core"
	"github.com/markdave123-py/Procura/internal/core/extract"
	"github.com/markdave123-py/Procura/internal/logger"
	"github.com/markdave123-py/Procura/internal/models"
	"github.com/markdave123-py/Procura/internal/telemetry"
)

// ErrRunInProgress is returned when a run is requested while another is
// still draining.
var ErrRunInProgress = errors.New("processing run already in progress")

// Options tunes an orchestration run. All values are policy, not
// contracts; defaults match production experience.
type Options struct {
	DocumentSlots int           // concurrent tasks in processing
	BatchLimit    int           // queued tasks pulled per run
	TaskTimeout   time.Duration // umbrella per-document deadline
	MinWords      int           // extraction quality floor before OCR
	OcrFactor     int           // OCR adoption threshold multiplier
}

func (o *Options) defaults() {
	if o.DocumentSlots <= 0 {
		o.DocumentSlots = 10
	}
	if o.BatchLimit <= 0 {
		o.BatchLimit = 200
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = 3 * time.Minute
	}
	if o.MinWords <= 0 {
		o.MinWords = 100
	}
	if o.OcrFactor <= 0 {
		o.OcrFactor = 2
	}
}

// Orchestrator drives queued tasks through the processing pipeline under
// a bounded document-level pool. The converter enforces its own,
// independent concurrency limit.
type Orchestrator struct {
	store      core.TaskStore
	resolver   *SourceResolver
	converter  core.Converter
	extractor  core.Extractor
	ocr        core.OcrEngine // nil when disabled by policy
	summarizer core.Summarizer
	indexer    core.Indexer
	archiver   core.Archiver // optional
	metrics    *telemetry.Metrics
	opts       Options
	running    atomic.Bool
}

func NewOrchestrator(
	store core.TaskStore,
	resolver *SourceResolver,
	converter core.Converter,
	extractor core.Extractor,
	ocr core.OcrEngine,
	summarizer core.Summarizer,
	indexer core.Indexer,
	archiver core.Archiver,
	metrics *telemetry.Metrics,
	opts Options,
) *Orchestrator {
	opts.defaults()
	return &Orchestrator{
		store:      store,
		resolver:   resolver,
		converter:  converter,
		extractor:  extractor,
		ocr:        ocr,
		summarizer: summarizer,
		indexer:    indexer,
		archiver:   archiver,
		metrics:    metrics,
		opts:       opts,
	}
}

// RunResult is the per-run statistics value. Returned rather than kept
// in shared state so concurrent runs (and tests) never interfere.
type RunResult struct {
	BatchID   string `json:"batch_id"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// ProcessQueued pulls all currently queued tasks and drives them through
// the pipeline. Admission is oldest-queued-first through a sliding
// window: a freed slot is immediately backfilled from the remaining
// queue, so the pool stays full without ever exceeding its cap.
func (o *Orchestrator) ProcessQueued(ctx context.Context) (*RunResult, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer o.running.Store(false)

	job := &models.BatchJob{
		ID:        uuid.NewString(),
		Status:    models.BatchRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := o.store.CreateBatchJob(ctx, job); err != nil {
		// Batch bookkeeping is observability only; the run proceeds.
		logger.Warn(ctx, "failed to create batch job", "error", err)
	}
	ctx = context.WithValue(ctx, logger.BatchIDKey, job.ID)

	tasks, err := o.store.ListQueuedTasks(ctx, o.opts.BatchLimit)
	if err != nil {
		return nil, fmt.Errorf("list queued tasks: %w", err)
	}
	if len(tasks) == 0 {
		o.finalizeJob(ctx, job.ID, 0, 0)
		return &RunResult{BatchID: job.ID}, nil
	}

	logger.Info(ctx, "starting batch run", "queued", len(tasks), "slots", o.opts.DocumentSlots)

	sem := semaphore.NewWeighted(int64(o.opts.DocumentSlots))
	var wg sync.WaitGroup
	var succeeded, failed atomic.Int64

	for i := range tasks {
		task := tasks[i]

		// A cancelled run stops admitting new work promptly.
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			if err := o.processOne(ctx, &task); err != nil {
				failed.Add(1)
			} else {
				succeeded.Add(1)
			}
		}()
	}

	wg.Wait()

	result := &RunResult{
		BatchID:   job.ID,
		Total:     len(tasks),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
	}
	o.finalizeJob(ctx, job.ID, result.Succeeded+result.Failed, result.Failed)

	logger.Info(ctx, "batch run finished",
		"total", result.Total, "succeeded", result.Succeeded, "failed", result.Failed)

	return result, ctx.Err()
}

func (o *Orchestrator) finalizeJob(ctx context.Context, jobID string, processed, errCount int) {
	// The run may have been cancelled; the final write gets its own ctx.
	cctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := o.store.CompleteBatchJob(cctx, jobID, models.BatchCompleted, processed, errCount); err != nil {
		logger.Warn(ctx, "failed to finalize batch job", "job_id", jobID, "error", err)
	}
}

// processOne runs the whole pipeline for a single task and commits its
// terminal status. One document's failure never affects the batch loop.
func (o *Orchestrator) processOne(ctx context.Context, task *models.DocumentTask) error {
	ctx = context.WithValue(ctx, logger.TaskIDKey, task.ID)

	// Cancellation before any state mutation leaves the task untouched.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.store.MarkProcessing(ctx, task.ID); err != nil {
		logger.Warn(ctx, "task not admissible", "error", err)
		return err
	}

	if o.metrics != nil {
		o.metrics.TasksInFlight.Add(ctx, 1)
		defer o.metrics.TasksInFlight.Add(ctx, -1)
	}

	tctx, cancel := context.WithTimeout(ctx, o.opts.TaskTimeout)
	defer cancel()

	type stageOut struct {
		summary *core.SummaryResult
		extract *core.ExtractResult
		err     error
	}
	done := make(chan stageOut, 1)
	go func() {
		summary, ex, err := o.runStages(tctx, task)
		done <- stageOut{summary: summary, extract: ex, err: err}
	}()

	var out stageOut
	select {
	case <-tctx.Done():
		if ctx.Err() != nil {
			// Run-level cancellation, not a timeout. No terminal write:
			// the reaper will recover the row if the process dies too.
			return ctx.Err()
		}
		o.failTask(ctx, task, fmt.Sprintf("%v after %s", core.ErrTaskTimeout, o.opts.TaskTimeout))
		return core.ErrTaskTimeout
	case out = <-done:
	}

	if out.err != nil {
		if errors.Is(out.err, context.Canceled) && ctx.Err() != nil {
			return out.err
		}
		if tctx.Err() == context.DeadlineExceeded {
			o.failTask(ctx, task, fmt.Sprintf("%v after %s", core.ErrTaskTimeout, o.opts.TaskTimeout))
			return core.ErrTaskTimeout
		}
		o.failTask(ctx, task, out.err.Error())
		return out.err
	}

	payload, err := json.Marshal(processedPayload{
		Filename:         task.Filename,
		ContractNoticeID: task.ContractNoticeID,
		ExtractionMethod: out.extract.Method,
		WordCount:        out.extract.WordCount,
		Summary:          out.summary,
		ProcessedAt:      time.Now().UTC(),
	})
	if err != nil {
		o.failTask(ctx, task, fmt.Sprintf("marshal processed data: %v", err))
		return err
	}

	// Indexing/archiving and the status commit are independent final side
	// effects; both are attempted even if one fails. Fresh context so a
	// task that used most of its budget still lands its terminal write.
	cctx, ccancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer ccancel()

	var commitErr error
	var fin sync.WaitGroup
	fin.Add(2)
	go func() {
		defer fin.Done()
		o.indexAndArchive(cctx, task, out.summary, out.extract, payload)
	}()
	go func() {
		defer fin.Done()
		if err := o.store.MarkCompleted(cctx, task.ID, payload); err != nil {
			logger.Error(ctx, "status commit failed", "error", err)
			commitErr = err
		}
	}()
	fin.Wait()

	if commitErr != nil {
		return commitErr
	}

	if o.metrics != nil {
		o.metrics.TasksCompleted.Add(ctx, 1)
	}
	logger.Info(ctx, "task completed",
		"filename", task.Filename, "method", out.extract.Method, "words", out.extract.WordCount)
	return nil
}

// runStages executes the staged transformation. The context is checked at
// every stage boundary and threaded into every external call, so
// cancellation aborts in-flight work instead of letting it complete
// uselessly.
func (o *Orchestrator) runStages(ctx context.Context, task *models.DocumentTask) (*core.SummaryResult, *core.ExtractResult, error) {
	src, err := o.resolver.Resolve(ctx, task)
	if err != nil {
		return nil, nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	canonical, err := o.converter.Convert(ctx, src)
	if err != nil {
		return nil, nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	result, extractErr := o.extractor.Extract(ctx, canonical)

	if extractErr != nil || result.WordCount < o.opts.MinWords {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if o.ocr == nil {
			if extractErr != nil {
				return nil, nil, extractErr
			}
			return nil, nil, fmt.Errorf("%w: structural extraction yielded %d words (< %d)",
				core.ErrOcrRequired, result.WordCount, o.opts.MinWords)
		}

		ocrText, ocrErr := o.ocr.Recognize(ctx, canonical)
		switch {
		case ocrErr == nil:
			result = extract.ChooseBetter(result, ocrText, o.opts.OcrFactor)
		case extractErr != nil:
			return nil, nil, ocrErr
		default:
			// Thin but usable structural text; OCR was only an upgrade.
			logger.Warn(ctx, "ocr fallback failed, keeping structural text", "error", ocrErr)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	summary, err := o.summarizer.Summarize(ctx, result.Text)
	if err != nil {
		return nil, nil, err
	}

	return summary, result, nil
}

// indexAndArchive pushes the result into the search store and the object
// archive. Best effort: failures are logged, never fatal to the task.
func (o *Orchestrator) indexAndArchive(ctx context.Context, task *models.DocumentTask, summary *core.SummaryResult, ex *core.ExtractResult, payload []byte) {
	if o.indexer != nil {
		metadata := map[string]string{
			"contract_notice_id": task.ContractNoticeID,
			"filename":           task.Filename,
			"document_type":      "government_contract",
			"extraction_method":  ex.Method,
		}
		if err := o.indexer.Index(ctx, task.ContractNoticeID, task.Filename, searchableContent(summary), metadata); err != nil {
			logger.Warn(ctx, "indexing failed", "error", err)
		}
	}
	if o.archiver != nil {
		if err := o.archiver.Archive(ctx, task.ContractNoticeID, task.Filename, payload); err != nil {
			logger.Warn(ctx, "archive failed", "error", err)
		}
	}
}

func (o *Orchestrator) failTask(ctx context.Context, task *models.DocumentTask, msg string) {
	// The umbrella deadline may already be spent; the failure write gets
	// its own context so the task is never stranded in processing.
	cctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := o.store.MarkFailed(cctx, task.ID, msg); err != nil {
		logger.Error(ctx, "failed to record task failure", "error", err)
		return
	}
	if o.metrics != nil {
		o.metrics.TasksFailed.Add(ctx, 1)
	}
	logger.Warn(ctx, "task failed", "filename", task.Filename, "reason", msg)
}

type processedPayload struct {
	Filename         string              `json:"filename"`
	ContractNoticeID string              `json:"contract_notice_id"`
	ExtractionMethod string              `json:"extraction_method"`
	WordCount        int                 `json:"word_count"`
	Summary          *core.SummaryResult `json:"summary"`
	ProcessedAt      time.Time           `json:"processed_at"`
}

// searchableContent flattens the summary's string fields into key: value
// lines for embedding and search.
func searchableContent(summary *core.SummaryResult) string {
	if summary == nil || len(summary.Data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(summary.Data))
	for k := range summary.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		switch v := summary.Data[k].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				lines = append(lines, k+": "+v)
			}
		case []any:
			var parts []string
			for _, item := range v {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				lines = append(lines, k+": "+strings.Join(parts, "; "))
			}
		}
	}
	return strings.Join(lines, "\n")
}
