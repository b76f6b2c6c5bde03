package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/parleychat/parley/internal/metrics"
)

// Subscriber is one delivery target, usually a WebSocket client. Enqueue
// must not block; it returns false when the subscriber's buffer is full, at
// which point the hub evicts and closes it rather than stall everyone else.
type Subscriber interface {
	Enqueue(payload []byte) bool
	Close()
}

// Publisher relays serialized events to other instances. *store.RedisStore
// satisfies it.
type Publisher interface {
	PublishEvent(ctx context.Context, payload []byte) error
}

// Hub routes events to subscribers. Message events go to the subscribers of
// their room; presence events go to every presence watcher. With a bridge
// configured, publishes travel through Redis and come back via Deliver, so
// every instance (including the publishing one) sees a single ordered
// stream. Without a bridge, publishes deliver locally.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[int64]map[Subscriber]struct{}
	presence map[Subscriber]struct{}

	bridge Publisher
	logger zerolog.Logger
}

// NewHub creates a hub. bridge may be nil for single-instance deployments.
func NewHub(logger zerolog.Logger, bridge Publisher) *Hub {
	return &Hub{
		rooms:    make(map[int64]map[Subscriber]struct{}),
		presence: make(map[Subscriber]struct{}),
		bridge:   bridge,
		logger:   logger.With().Str("component", "hub").Logger(),
	}
}

// SubscribeRoom registers a subscriber for one room's message events.
func (h *Hub) SubscribeRoom(roomID int64, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.rooms[roomID]
	if !ok {
		set = make(map[Subscriber]struct{})
		h.rooms[roomID] = set
	}
	set[sub] = struct{}{}
}

// UnsubscribeRoom removes a room subscriber. Safe to call twice.
func (h *Hub) UnsubscribeRoom(roomID int64, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.rooms[roomID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// SubscribePresence registers a subscriber for presence events.
func (h *Hub) SubscribePresence(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.presence[sub] = struct{}{}
}

// UnsubscribePresence removes a presence subscriber. Safe to call twice.
func (h *Hub) UnsubscribePresence(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.presence, sub)
}

// Publish sends an event into the fan-out channel. With a bridge the event
// goes through Redis only; delivery to local subscribers happens when the
// bridge hands it back to Deliver.
func (h *Hub) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	metrics.HubEventsPublished.WithLabelValues(evt.Type).Inc()

	if h.bridge != nil {
		return h.bridge.PublishEvent(ctx, payload)
	}
	h.Deliver(payload)
	return nil
}

// Deliver routes a serialized event to its local subscribers. Called by the
// Redis bridge for every event on the shared channel, and by Publish when
// no bridge is configured.
func (h *Hub) Deliver(payload []byte) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Warn().Err(err).Msg("Dropping undecodable event")
		return
	}

	var targets []Subscriber
	h.mu.RLock()
	switch evt.Type {
	case EventMessage:
		for sub := range h.rooms[evt.RoomID] {
			targets = append(targets, sub)
		}
	case EventPresence:
		for sub := range h.presence {
			targets = append(targets, sub)
		}
	default:
		h.mu.RUnlock()
		h.logger.Warn().Str("type", evt.Type).Msg("Dropping event of unknown type")
		return
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		if !sub.Enqueue(payload) {
			// Slow consumer; cut it loose instead of blocking the stream.
			h.evict(evt, sub)
		}
	}
}

func (h *Hub) evict(evt Event, sub Subscriber) {
	h.mu.Lock()
	if evt.Type == EventMessage {
		if set, ok := h.rooms[evt.RoomID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.rooms, evt.RoomID)
			}
		}
	} else {
		delete(h.presence, sub)
	}
	h.mu.Unlock()

	metrics.HubSubscribersEvicted.Inc()
	h.logger.Warn().Str("event_type", evt.Type).Msg("Evicted slow subscriber")
	sub.Close()
}

// RoomSubscribers reports how many subscribers a room currently has.
func (h *Hub) RoomSubscribers(roomID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
