package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/models"
)

// fakeSubscriber buffers deliveries; full simulates a slow consumer whose
// buffer never drains.
type fakeSubscriber struct {
	payloads [][]byte
	full     bool
	closed   bool
}

func (f *fakeSubscriber) Enqueue(payload []byte) bool {
	if f.full {
		return false
	}
	f.payloads = append(f.payloads, payload)
	return true
}

func (f *fakeSubscriber) Close() { f.closed = true }

func testMessage(roomID int64) *models.Message {
	return &models.Message{ID: 1, RoomID: roomID, SenderID: 7, Content: "hello", CreatedAt: time.Now()}
}

func TestPublishRoutesMessageToRoomSubscribers(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)

	inRoom := &fakeSubscriber{}
	otherRoom := &fakeSubscriber{}
	watcher := &fakeSubscriber{}

	h.SubscribeRoom(1, inRoom)
	h.SubscribeRoom(2, otherRoom)
	h.SubscribePresence(watcher)

	err := h.Publish(context.Background(), NewMessageEvent(testMessage(1), "alice"))
	require.NoError(t, err)

	require.Len(t, inRoom.payloads, 1)
	assert.Empty(t, otherRoom.payloads)
	assert.Empty(t, watcher.payloads)

	var evt Event
	require.NoError(t, json.Unmarshal(inRoom.payloads[0], &evt))
	assert.Equal(t, EventMessage, evt.Type)
	assert.Equal(t, "hello", evt.Content)
	assert.Equal(t, "alice", evt.Username)
	assert.NotEmpty(t, evt.ID)
}

func TestPublishRoutesPresenceToWatchers(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)

	inRoom := &fakeSubscriber{}
	watcher := &fakeSubscriber{}

	h.SubscribeRoom(1, inRoom)
	h.SubscribePresence(watcher)

	err := h.Publish(context.Background(), NewPresenceEvent(7, "alice", true))
	require.NoError(t, err)

	require.Len(t, watcher.payloads, 1)
	assert.Empty(t, inRoom.payloads)

	var evt Event
	require.NoError(t, json.Unmarshal(watcher.payloads[0], &evt))
	assert.Equal(t, EventPresence, evt.Type)
	assert.Equal(t, int64(7), evt.UserID)
	assert.True(t, evt.IsOnline)
}

func TestSlowSubscriberIsEvicted(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)

	slow := &fakeSubscriber{full: true}
	fast := &fakeSubscriber{}

	h.SubscribeRoom(1, slow)
	h.SubscribeRoom(1, fast)

	require.NoError(t, h.Publish(context.Background(), NewMessageEvent(testMessage(1), "alice")))

	assert.True(t, slow.closed)
	assert.Len(t, fast.payloads, 1)
	assert.Equal(t, 1, h.RoomSubscribers(1))

	// The evicted subscriber gets nothing further.
	require.NoError(t, h.Publish(context.Background(), NewMessageEvent(testMessage(1), "alice")))
	assert.Empty(t, slow.payloads)
	assert.Len(t, fast.payloads, 2)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)

	sub := &fakeSubscriber{}
	h.SubscribeRoom(1, sub)
	h.UnsubscribeRoom(1, sub)

	require.NoError(t, h.Publish(context.Background(), NewMessageEvent(testMessage(1), "alice")))
	assert.Empty(t, sub.payloads)

	watcher := &fakeSubscriber{}
	h.SubscribePresence(watcher)
	h.UnsubscribePresence(watcher)

	require.NoError(t, h.Publish(context.Background(), NewPresenceEvent(7, "alice", false)))
	assert.Empty(t, watcher.payloads)
}

func TestDeliverIgnoresGarbage(t *testing.T) {
	h := NewHub(zerolog.Nop(), nil)

	sub := &fakeSubscriber{}
	h.SubscribeRoom(1, sub)

	h.Deliver([]byte("not json"))
	h.Deliver([]byte(`{"type":"mystery","room_id":1}`))

	assert.Empty(t, sub.payloads)
}

// capturingPublisher stands in for the Redis bridge.
type capturingPublisher struct {
	payloads [][]byte
}

func (p *capturingPublisher) PublishEvent(ctx context.Context, payload []byte) error {
	p.payloads = append(p.payloads, payload)
	return nil
}

func TestBridgedPublishSkipsLocalDelivery(t *testing.T) {
	pub := &capturingPublisher{}
	h := NewHub(zerolog.Nop(), pub)

	sub := &fakeSubscriber{}
	h.SubscribeRoom(1, sub)

	require.NoError(t, h.Publish(context.Background(), NewMessageEvent(testMessage(1), "alice")))

	// The event went to the bridge; local delivery happens when the bridge
	// feeds it back.
	require.Len(t, pub.payloads, 1)
	assert.Empty(t, sub.payloads)

	h.Deliver(pub.payloads[0])
	assert.Len(t, sub.payloads, 1)
}
