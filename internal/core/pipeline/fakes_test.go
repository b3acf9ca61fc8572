package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/markdave123-py/Procura/internal/core"
	"github.com/markdave123-py/Procura/internal/models"
)

// memStore is an in-memory core.TaskStore that enforces the same status
// transition guards as the SQL implementation.
type memStore struct {
	mu    sync.Mutex
	tasks map[string]*models.DocumentTask
	jobs  map[string]*models.BatchJob

	failMarkProcessing bool
}

func newMemStore() *memStore {
	return &memStore{
		tasks: make(map[string]*models.DocumentTask),
		jobs:  make(map[string]*models.BatchJob),
	}
}

func (s *memStore) add(t *models.DocumentTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	if cp.Status == "" {
		cp.Status = models.TaskQueued
	}
	if cp.QueuedAt.IsZero() {
		cp.QueuedAt = time.Now().UTC()
	}
	s.tasks[cp.ID] = &cp
}

func (s *memStore) get(id string) models.DocumentTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tasks[id]
}

func (s *memStore) EnqueueTask(ctx context.Context, task *models.DocumentTask) (*models.DocumentTask, error) {
	if task.DocumentURL != "" {
		s.mu.Lock()
		for _, existing := range s.tasks {
			if existing.ContractNoticeID == task.ContractNoticeID && existing.DocumentURL == task.DocumentURL {
				cp := *existing
				s.mu.Unlock()
				return &cp, nil
			}
		}
		s.mu.Unlock()
	}
	s.add(task)
	t := s.get(task.ID)
	return &t, nil
}

func (s *memStore) GetTask(ctx context.Context, id string) (*models.DocumentTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, errors.New("task not found")
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) ListQueuedTasks(ctx context.Context, limit int) ([]models.DocumentTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DocumentTask
	for _, t := range s.tasks {
		if t.Status == models.TaskQueued {
			out = append(out, *t)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) MarkProcessing(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMarkProcessing {
		return errors.New("forced admission failure")
	}
	t, ok := s.tasks[id]
	if !ok || t.Status != models.TaskQueued {
		return fmt.Errorf("task %s not admissible", id)
	}
	now := time.Now().UTC()
	t.Status = models.TaskProcessing
	t.StartedAt = &now
	return nil
}

func (s *memStore) MarkCompleted(ctx context.Context, id string, processedData []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return errors.New("task not found")
	}
	now := time.Now().UTC()
	t.Status = models.TaskCompleted
	t.CompletedAt = &now
	t.ProcessedData = processedData
	t.ErrorMessage = ""
	return nil
}

func (s *memStore) MarkFailed(ctx context.Context, id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return errors.New("task not found")
	}
	now := time.Now().UTC()
	t.Status = models.TaskFailed
	t.FailedAt = &now
	t.ErrorMessage = errMsg
	return nil
}

func (s *memStore) FindStuckTasks(ctx context.Context, olderThan time.Duration) ([]models.DocumentTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var out []models.DocumentTask
	for _, t := range s.tasks {
		if t.Status == models.TaskProcessing && t.StartedAt != nil && t.StartedAt.Before(cutoff) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *memStore) ResetStuckTask(ctx context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return errors.New("task not found")
	}
	if t.Status != models.TaskProcessing {
		// Idempotent: a task already moved on is left alone.
		return nil
	}
	t.Status = models.TaskQueued
	t.StartedAt = nil
	t.RetryCount++
	t.ErrorMessage = reason
	return nil
}

func (s *memStore) CreateBatchJob(ctx context.Context, job *models.BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[cp.ID] = &cp
	return nil
}

func (s *memStore) GetBatchJob(ctx context.Context, id string) (*models.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, errors.New("job not found")
	}
	cp := *j
	return &cp, nil
}

func (s *memStore) CompleteBatchJob(ctx context.Context, id string, status models.BatchStatus, processed, errCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return errors.New("job not found")
	}
	now := time.Now().UTC()
	j.Status = status
	j.CompletedAt = &now
	j.RecordsProcessed = processed
	j.ErrorsCount = errCount
	return nil
}

func (s *memStore) FindStaleBatchJobs(ctx context.Context, olderThan time.Duration) ([]models.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var out []models.BatchJob
	for _, j := range s.jobs {
		if j.Status == models.BatchRunning && j.StartedAt.Before(cutoff) {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (s *memStore) QueueStats(ctx context.Context) (*models.QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &models.QueueStats{}
	for _, t := range s.tasks {
		switch t.Status {
		case models.TaskQueued:
			stats.Queued++
		case models.TaskProcessing:
			stats.Processing++
		case models.TaskCompleted:
			stats.Completed++
		case models.TaskFailed:
			stats.Failed++
		}
		stats.Total++
	}
	return stats, nil
}

func (s *memStore) Close() error { return nil }

var _ core.TaskStore = (*memStore)(nil)

// passthroughConverter returns the source path unchanged.
type passthroughConverter struct{}

func (passthroughConverter) Convert(ctx context.Context, sourcePath string) (string, error) {
	return sourcePath, nil
}

// fakeExtractor answers with fixed text, optionally erroring.
type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) Extract(ctx context.Context, canonicalPath string) (*core.ExtractResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &core.ExtractResult{
		Text:      f.text,
		WordCount: len(strings.Fields(f.text)),
		Method:    "structural",
	}, nil
}

// fakeOcr answers with fixed text.
type fakeOcr struct {
	text string
	err  error
}

func (f fakeOcr) Recognize(ctx context.Context, canonicalPath string) (string, error) {
	return f.text, f.err
}

// fakeSummarizer tracks concurrency and can block or fail on demand.
type fakeSummarizer struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	calls    int
	delay    time.Duration
	block    bool // never returns until ctx is done
	err      error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, text string) (*core.SummaryResult, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &core.SummaryResult{Data: map[string]any{"title": "Test contract", "summary": "short summary"}}, nil
}

func (f *fakeSummarizer) peakConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

// fakeIndexer records Index calls keyed by notice id + filename.
type fakeIndexer struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{calls: make(map[string]int)}
}

func (f *fakeIndexer) Index(ctx context.Context, noticeID, filename, content string, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[noticeID+"/"+filename]++
	return f.err
}

func (f *fakeIndexer) count(noticeID, filename string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[noticeID+"/"+filename]
}

// fakeArchiver records archived payloads.
type fakeArchiver struct {
	mu       sync.Mutex
	archived map[string][]byte
	err      error
}

func newFakeArchiver() *fakeArchiver {
	return &fakeArchiver{archived: make(map[string][]byte)}
}

func (f *fakeArchiver) Archive(ctx context.Context, noticeID, filename string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived[noticeID+"/"+filename] = payload
	return nil
}
