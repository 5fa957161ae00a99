package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adjust481/PolySniper/internal/backtest"
	"github.com/adjust481/PolySniper/internal/domain"
	"github.com/adjust481/PolySniper/internal/service"
)

type fakeRuns struct {
	startCfg    backtest.Config
	startReplay string
	startErr    error
	cancelled   map[string]bool
	statusErr   error
	listOpts    domain.ListOpts
	feedCount   int
	feed        []domain.StreamMessage
}

func (f *fakeRuns) Start(_ context.Context, cfg backtest.Config, replay string) (string, error) {
	f.startCfg, f.startReplay = cfg, replay
	if f.startErr != nil {
		return "", f.startErr
	}
	return "run-1", nil
}

func (f *fakeRuns) Cancel(id string) bool { return f.cancelled[id] }

func (f *fakeRuns) Status(_ context.Context, id string) (service.RunStatus, error) {
	if f.statusErr != nil {
		return service.RunStatus{}, f.statusErr
	}
	return service.RunStatus{RunID: id, State: service.StateCompleted}, nil
}

func (f *fakeRuns) List(_ context.Context, opts domain.ListOpts) ([]domain.RunRecord, error) {
	f.listOpts = opts
	return nil, nil
}

func (f *fakeRuns) Outcomes(_ context.Context, id, profile string) ([]domain.TradeOutcome, error) {
	return []domain.TradeOutcome{{Tick: 3, Profile: profile}}, nil
}

func (f *fakeRuns) PriceHistory(_ context.Context, id string) ([]domain.PricePoint, error) {
	return nil, fmt.Errorf("store: %w", domain.ErrNotFound)
}

func (f *fakeRuns) Feed(_ context.Context, _ string, count int) ([]domain.StreamMessage, error) {
	f.feedCount = count
	return f.feed, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMux(runs *fakeRuns) *http.ServeMux {
	h := NewRunHandler(runs, backtest.DefaultConfig(), "data/replay.csv", quietLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/runs", h.StartRun)
	mux.HandleFunc("GET /api/runs", h.ListRuns)
	mux.HandleFunc("GET /api/runs/feed", h.Feed)
	mux.HandleFunc("GET /api/runs/{id}", h.GetRun)
	mux.HandleFunc("DELETE /api/runs/{id}", h.CancelRun)
	mux.HandleFunc("GET /api/runs/{id}/outcomes", h.ListOutcomes)
	mux.HandleFunc("GET /api/runs/{id}/prices", h.GetPriceHistory)
	return mux
}

func do(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func TestStartRunAppliesOverrides(t *testing.T) {
	runs := &fakeRuns{}
	rec := do(newMux(runs), http.MethodPost, "/api/runs",
		`{"execution_mode":"atomic","seed":7,"source":"replay","profiles":["pro"]}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/api/runs/run-1", rec.Header().Get("Location"))
	assert.Equal(t, domain.ExecutionAtomic, runs.startCfg.ExecutionMode)
	assert.Equal(t, int64(7), runs.startCfg.Seed)
	assert.Equal(t, []string{"pro"}, runs.startCfg.Profiles)
	assert.Equal(t, "data/replay.csv", runs.startReplay)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, "running", body["state"])
}

func TestStartRunEmptyBodyUsesDefaults(t *testing.T) {
	runs := &fakeRuns{}
	rec := do(newMux(runs), http.MethodPost, "/api/runs", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, backtest.DefaultConfig().Seed, runs.startCfg.Seed)
}

func TestStartRunRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown field":  `{"colour":"red"}`,
		"bad mode":       `{"execution_mode":"sideways"}`,
		"malformed json": `{"seed":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(newMux(&fakeRuns{}), http.MethodPost, "/api/runs", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestStartRunMapsServiceErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("service: start: %w", domain.ErrRunLimit), http.StatusTooManyRequests},
		{fmt.Errorf("backtest: %w", domain.ErrInvalidConfig), http.StatusBadRequest},
		{fmt.Errorf("service: %w", domain.ErrLockHeld), http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := do(newMux(&fakeRuns{startErr: tc.err}), http.MethodPost, "/api/runs", "{}")
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
	}
}

func TestGetRun(t *testing.T) {
	rec := do(newMux(&fakeRuns{}), http.MethodGet, "/api/runs/abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st service.RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "abc", st.RunID)
	assert.Equal(t, service.StateCompleted, st.State)

	rec = do(newMux(&fakeRuns{statusErr: fmt.Errorf("x: %w", domain.ErrNotFound)}), http.MethodGet, "/api/runs/abc", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelRun(t *testing.T) {
	runs := &fakeRuns{cancelled: map[string]bool{"live": true}}
	assert.Equal(t, http.StatusAccepted, do(newMux(runs), http.MethodDelete, "/api/runs/live", "").Code)
	assert.Equal(t, http.StatusNotFound, do(newMux(runs), http.MethodDelete, "/api/runs/gone", "").Code)
}

func TestListRunsParsesOptions(t *testing.T) {
	runs := &fakeRuns{}
	rec := do(newMux(runs), http.MethodGet, "/api/runs?limit=9000&offset=5&since=2024-11-05T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, runs.listOpts.Limit)
	assert.Equal(t, 5, runs.listOpts.Offset)
	require.NotNil(t, runs.listOpts.Since)
	assert.Equal(t, 2024, runs.listOpts.Since.Year())
	assert.Contains(t, rec.Body.String(), `"runs":[]`)
}

func TestListOutcomesPassesProfile(t *testing.T) {
	rec := do(newMux(&fakeRuns{}), http.MethodGet, "/api/runs/abc/outcomes?profile=pro", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Outcomes []domain.TradeOutcome `json:"outcomes"`
		Count    int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "pro", body.Outcomes[0].Profile)
}

func TestPriceHistoryNotFound(t *testing.T) {
	rec := do(newMux(&fakeRuns{}), http.MethodGet, "/api/runs/abc/prices", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedEmbedsPayloads(t *testing.T) {
	runs := &fakeRuns{feed: []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"run_id":"a"}`)},
		{ID: "2-0", Payload: []byte(`not json`)},
	}}
	rec := do(newMux(runs), http.MethodGet, "/api/runs/feed?count=1000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 200, runs.feedCount)

	var body struct {
		Entries []struct {
			ID      string          `json:"id"`
			Summary json.RawMessage `json:"summary"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 2)
	assert.JSONEq(t, `{"run_id":"a"}`, string(body.Entries[0].Summary))
	assert.Equal(t, `"not json"`, string(body.Entries[1].Summary))
}

var testStart = time.Now().Add(-time.Minute)

type counter int

func (c counter) ActiveRuns() int { return int(c) }

func TestStatusAndProfiles(t *testing.T) {
	h := NewStatusHandler("serve", testStart, counter(2))

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "serve", st["mode"])
	assert.EqualValues(t, 2, st["active_runs"])

	rec = httptest.NewRecorder()
	h.ListProfiles(rec, httptest.NewRequest(http.MethodGet, "/api/profiles", nil))
	var body struct {
		Profiles []json.RawMessage `json:"profiles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Profiles, len(domain.DefaultProfiles))
}

func TestHealthCheck(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	rec := httptest.NewRecorder()
	NewHealthHandler(map[string]Checker{"postgres": ok}, quietLogger()).
		HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(map[string]Checker{"postgres": ok, "redis": down}, quietLogger()).
		HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Dependencies["postgres"])
	assert.Equal(t, "connection refused", body.Dependencies["redis"])
}
