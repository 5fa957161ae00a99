package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adjust481/PolySniper/internal/domain"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventRunFailed}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), EventRunCompleted, "done", ""))
	require.NoError(t, n.Notify(context.Background(), EventRunFailed, "failed", ""))
	assert.Equal(t, []string{"failed"}, s.titles)
}

func TestNotifierJoinsSenderErrors(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("down")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), EventRunCompleted, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Equal(t, []string{"t"}, good.titles)
}

func TestNotifierWithoutSenders(t *testing.T) {
	var n *Notifier
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), EventRunCompleted, "t", "m"))
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), "Run done", "body"))
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Run done*\nbody", got["text"])
}

func TestDiscordSenderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "slow down")
}

func TestRunCompletedMessage(t *testing.T) {
	title, msg := RunCompleted(domain.RunRecord{
		ID:            "0123456789abcdef",
		Seed:          42,
		Source:        domain.SourceSynthetic,
		ExecutionMode: domain.ExecutionNonAtomic,
		Completed:     true,
		Stats:         domain.RunStatistics{TotalTicks: 224, BlackSwan: 1},
		Metrics:       []domain.ProfileMetrics{{Profile: "pro", NetProfit: 12.5, Count: 10, SuccessRatePct: 40}},
	})
	assert.Equal(t, "Run 01234567 completed", title)
	assert.Contains(t, msg, "seed 42")
	assert.Contains(t, msg, "pro: net $12.50 over 10 (40.0% success)")

	title, _ = RunCompleted(domain.RunRecord{ID: "abc"})
	assert.Equal(t, "Run abc stopped early", title)
}
