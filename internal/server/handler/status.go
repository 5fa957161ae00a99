package handler

import (
	"net/http"
	"time"

	"github.com/adjust481/PolySniper/internal/domain"
)

// ActiveCounter reports how many runs are executing.
type ActiveCounter interface {
	ActiveRuns() int
}

// StatusHandler serves the process status and the participant table.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	runs      ActiveCounter
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, startedAt time.Time, runs ActiveCounter) *StatusHandler {
	return &StatusHandler{mode: mode, startedAt: startedAt, runs: runs}
}

// GetStatus responds with mode, uptime and active run count.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"started_at":     h.startedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"active_runs":    h.runs.ActiveRuns(),
	})
}

// ListProfiles returns the built-in participant profiles.
// GET /api/profiles
func (h *StatusHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	out := make([]domain.ParticipantProfile, 0, len(domain.DefaultProfiles))
	for _, name := range domain.DefaultProfiles {
		p, err := domain.LookupProfile(name)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": out})
}
