package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/adjust481/PolySniper/internal/backtest"
	"github.com/adjust481/PolySniper/internal/domain"
	"github.com/adjust481/PolySniper/internal/service"
)

// RunService is the part of the run service the handler drives.
type RunService interface {
	Start(ctx context.Context, cfg backtest.Config, replayPath string) (string, error)
	Cancel(runID string) bool
	Status(ctx context.Context, runID string) (service.RunStatus, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.RunRecord, error)
	Outcomes(ctx context.Context, runID, profile string) ([]domain.TradeOutcome, error)
	PriceHistory(ctx context.Context, runID string) ([]domain.PricePoint, error)
	Feed(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error)
}

// RunHandler serves the simulation run endpoints.
type RunHandler struct {
	runs          RunService
	base          backtest.Config
	defaultReplay string
	logger        *slog.Logger
}

// NewRunHandler creates a RunHandler. Requests override base field by field.
func NewRunHandler(runs RunService, base backtest.Config, defaultReplay string, logger *slog.Logger) *RunHandler {
	return &RunHandler{runs: runs, base: base, defaultReplay: defaultReplay, logger: logger}
}

// StartRun validates the request and starts the run in the background.
// POST /api/runs
func (h *RunHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req service.RunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg, replay, err := req.Apply(h.base, h.defaultReplay)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	id, err := h.runs.Start(r.Context(), cfg, replay)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: start run failed", slog.String("error", err.Error()))
		}
		writeError(w, code, err.Error())
		return
	}

	w.Header().Set("Location", "/api/runs/"+id)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": id,
		"state":  string(service.StateRunning),
	})
}

type listRunsResponse struct {
	Runs   []domain.RunRecord `json:"runs"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// ListRuns returns run headers, newest first.
// GET /api/runs?limit=50&offset=0&since=2024-11-05T00:00:00Z
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	runs, err := h.runs.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list runs failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []domain.RunRecord{}
	}
	writeJSON(w, http.StatusOK, listRunsResponse{Runs: runs, Limit: opts.Limit, Offset: opts.Offset})
}

// GetRun returns the status of one run, including its header once finished.
// GET /api/runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	st, err := h.runs.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "get run", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// CancelRun stops a background run.
// DELETE /api/runs/{id}
func (h *RunHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.runs.Cancel(id) {
		writeError(w, http.StatusNotFound, "no active run "+id)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id, "state": "cancelling"})
}

// ListOutcomes returns the outcome log of a run.
// GET /api/runs/{id}/outcomes?profile=pro
func (h *RunHandler) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	outcomes, err := h.runs.Outcomes(r.Context(), r.PathValue("id"), r.URL.Query().Get("profile"))
	if err != nil {
		h.fail(w, r, "list outcomes", err)
		return
	}
	if outcomes == nil {
		outcomes = []domain.TradeOutcome{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes, "count": len(outcomes)})
}

// GetPriceHistory returns the per-tick price series of a run.
// GET /api/runs/{id}/prices
func (h *RunHandler) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	points, err := h.runs.PriceHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "price history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}

type feedEntry struct {
	ID      string `json:"id"`
	Summary any    `json:"summary"`
}

// Feed returns run summaries from the durable stream.
// GET /api/runs/feed?after=0&count=20
func (h *RunHandler) Feed(w http.ResponseWriter, r *http.Request) {
	count := 20
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = min(n, 200)
		}
	}

	msgs, err := h.runs.Feed(r.Context(), r.URL.Query().Get("after"), count)
	if err != nil {
		h.fail(w, r, "run feed", err)
		return
	}

	entries := make([]feedEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, feedEntry{ID: m.ID, Summary: rawJSON(m.Payload)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *RunHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
		writeError(w, code, op+" failed")
		return
	}
	writeError(w, code, err.Error())
}
