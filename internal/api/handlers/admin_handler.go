package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/markdave123-py/Procura/internal/core"
	"github.com/markdave123-py/Procura/internal/core/pipeline"
	"github.com/markdave123-py/Procura/internal/logger"
	"github.com/markdave123-py/Procura/internal/models"
)

type AdminHandler struct {
	store        core.TaskStore
	orchestrator *pipeline.Orchestrator
	reaper       *pipeline.Reaper
	stuckAfter   time.Duration
}

func NewAdminHandler(store core.TaskStore, orch *pipeline.Orchestrator, reaper *pipeline.Reaper, stuckAfter time.Duration) *AdminHandler {
	return &AdminHandler{store: store, orchestrator: orch, reaper: reaper, stuckAfter: stuckAfter}
}

type enqueueRequest struct {
	ContractNoticeID string `json:"contract_notice_id"`
	DocumentURL      string `json:"document_url"`
	Filename         string `json:"filename"`
	LocalFilePath    string `json:"local_file_path,omitempty"`
	MaxRetries       int    `json:"max_retries,omitempty"`
}

// EnqueueDocument adds one attachment to the processing queue. Upstream
// scrapers call this; duplicates of (notice, url) are absorbed.
func (h *AdminHandler) EnqueueDocument(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.ContractNoticeID == "" || req.Filename == "" {
		http.Error(w, "contract_notice_id and filename are required", http.StatusBadRequest)
		return
	}
	if req.MaxRetries <= 0 {
		req.MaxRetries = 3
	}

	task, err := h.store.EnqueueTask(r.Context(), &models.DocumentTask{
		ID:               uuid.NewString(),
		ContractNoticeID: req.ContractNoticeID,
		DocumentURL:      req.DocumentURL,
		Filename:         req.Filename,
		LocalFilePath:    req.LocalFilePath,
		Status:           models.TaskQueued,
		QueuedAt:         time.Now().UTC(),
		MaxRetries:       req.MaxRetries,
	})
	if err != nil {
		http.Error(w, "failed to enqueue document", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// QueueStats reports per-status task counts plus batch totals.
func (h *AdminHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.QueueStats(r.Context())
	if err != nil {
		http.Error(w, "failed to read queue stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// StuckTasks lists processing tasks that have exceeded the stuck threshold.
func (h *AdminHandler) StuckTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.store.FindStuckTasks(r.Context(), h.stuckAfter)
	if err != nil {
		http.Error(w, "failed to query stuck tasks", http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []models.DocumentTask{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"threshold": h.stuckAfter.String(),
		"count":     len(tasks),
		"tasks":     tasks,
	})
}

// ResetStuck runs a reaper sweep on demand and reports what was recovered.
func (h *AdminHandler) ResetStuck(w http.ResponseWriter, r *http.Request) {
	res, err := h.reaper.Sweep(r.Context())
	if err != nil {
		http.Error(w, "sweep failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// TriggerRun starts a queue drain in the background. A run already in
// flight answers 409 so operators can't stack batches.
func (h *AdminHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	ctx := context.Background()
	started := make(chan error, 1)

	go func() {
		res, err := h.orchestrator.ProcessQueued(ctx)
		if err != nil {
			started <- err
			return
		}
		started <- nil
		logger.Info(ctx, "batch run finished",
			"batch_id", res.BatchID,
			"total", res.Total,
			"succeeded", res.Succeeded,
			"failed", res.Failed)
	}()

	// Give the run a moment to claim the slot so a duplicate trigger
	// surfaces as a conflict rather than a silent no-op.
	select {
	case err := <-started:
		if errors.Is(err, pipeline.ErrRunInProgress) {
			http.Error(w, "a processing run is already in progress", http.StatusConflict)
			return
		}
		if err != nil {
			http.Error(w, "failed to start run", http.StatusInternalServerError)
			return
		}
	case <-time.After(200 * time.Millisecond):
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "processing started"})
}

// GetJob returns a single batch job by id.
func (h *AdminHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := h.store.GetBatchJob(r.Context(), id)
	if err != nil || job == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
