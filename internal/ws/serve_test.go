package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/api/middleware"
	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/internal/hub"
	"github.com/parleychat/parley/internal/store"
)

// watchSubscriber collects hub deliveries for assertions.
type watchSubscriber struct {
	events chan []byte
}

func (w *watchSubscriber) Enqueue(payload []byte) bool {
	select {
	case w.events <- payload:
		return true
	default:
		return false
	}
}

func (w *watchSubscriber) Close() {}

func recvEvent(t *testing.T, w *watchSubscriber) hub.Event {
	t.Helper()
	select {
	case payload := <-w.events:
		var evt hub.Event
		require.NoError(t, json.Unmarshal(payload, &evt))
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return hub.Event{}
	}
}

func TestPresenceSocketBracketsOwnPresence(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	user, err := st.CreateUser(ctx, "alice", "alice@example.com", "hash")
	require.NoError(t, err)

	eventHub := hub.NewHub(zerolog.Nop(), nil)
	srv := NewServer(st, nil, eventHub, chat.NewMessageLog(st), zerolog.Nop())

	watcher := &watchSubscriber{events: make(chan []byte, 8)}
	eventHub.SubscribePresence(watcher)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.ServePresence(w, r.WithContext(context.WithValue(r.Context(), middleware.UserContextKey, user)))
	}))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)

	// Connecting flips the watcher online and broadcasts it.
	evt := recvEvent(t, watcher)
	assert.Equal(t, hub.EventPresence, evt.Type)
	assert.Equal(t, user.ID, evt.UserID)
	assert.True(t, evt.IsOnline)

	require.Eventually(t, func() bool {
		u, err := st.GetUserByID(ctx, user.ID)
		return err == nil && u != nil && u.IsOnline
	}, time.Second, 10*time.Millisecond)

	// Disconnecting flips it back and broadcasts that too.
	conn.Close()

	evt = recvEvent(t, watcher)
	assert.Equal(t, hub.EventPresence, evt.Type)
	assert.Equal(t, user.ID, evt.UserID)
	assert.False(t, evt.IsOnline)

	require.Eventually(t, func() bool {
		u, err := st.GetUserByID(ctx, user.ID)
		return err == nil && u != nil && !u.IsOnline
	}, time.Second, 10*time.Millisecond)
}
