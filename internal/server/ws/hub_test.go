package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/profitharness/internal/domain"
)

func TestIsSubscribedPrefix(t *testing.T) {
	c := &client{subs: map[string]bool{"ch:harness:swap_*": true, "exact": true}}
	assert.True(t, c.isSubscribed("ch:harness:swap_failed"))
	assert.True(t, c.isSubscribed("exact"))
	assert.False(t, c.isSubscribed("ch:harness:profit_computed"))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"exact"}})
	assert.False(t, c.isSubscribed("exact"))
}

func TestHubStreamsEmittedEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, func() map[string]any { return map[string]any{"executing": false} }, slog.Default())
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var status map[string]any
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "harness_status", status["type"])

	require.Eventually(t, func() bool { return hub.clientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Emit(ctx, domain.Event{Kind: domain.EventSwapFailed, Data: map[string]any{"reason": "K"}})

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev domain.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, domain.EventSwapFailed, ev.Kind)
	assert.Equal(t, "K", ev.Data["reason"])
}
