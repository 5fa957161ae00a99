package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveChannel(t *testing.T) {
	progress := []byte(`{"type":"run_progress","payload":{"run_id":"abc","done":3}}`)

	assert.Equal(t, "ch:run:abc", resolveChannel("ch:run:*", progress))
	assert.Equal(t, "ch:run", resolveChannel("ch:run", progress))
	assert.Equal(t, "ch:run:*", resolveChannel("ch:run:*", []byte("garbage")))
	assert.Equal(t, "ch:run:*", resolveChannel("ch:run:*", []byte(`{"type":"x","payload":{}}`)))
}

func TestClientSubscriptions(t *testing.T) {
	c := newClient(&Hub{}, nil)

	assert.True(t, c.isSubscribed("ch:run"))
	assert.True(t, c.isSubscribed("ch:run:abc"))
	assert.False(t, c.isSubscribed("ch:other"))

	c.handleSubscription(subscribeMsg{Action: "only", Channels: []string{"ch:run:abc"}})
	assert.True(t, c.isSubscribed("ch:run:abc"))
	assert.False(t, c.isSubscribed("ch:run:def"))
	assert.False(t, c.isSubscribed("ch:run"))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"ch:run"}})
	assert.True(t, c.isSubscribed("ch:run"))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"ch:run:abc"}})
	assert.False(t, c.isSubscribed("ch:run:abc"))
	assert.ElementsMatch(t, []string{"ch:run"}, c.subscriptions())
}

func TestStatusMessage(t *testing.T) {
	data, err := statusMessage("serve", time.Now().Add(-90*time.Second), []string{"ch:run"})
	require.NoError(t, err)

	var msg struct {
		Type    string `json:"type"`
		Payload struct {
			Mode     string   `json:"mode"`
			Uptime   int64    `json:"uptime_seconds"`
			Channels []string `json:"channels"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "server_status", msg.Type)
	assert.Equal(t, "serve", msg.Payload.Mode)
	assert.GreaterOrEqual(t, msg.Payload.Uptime, int64(89))
	assert.Equal(t, []string{"ch:run"}, msg.Payload.Channels)
}
