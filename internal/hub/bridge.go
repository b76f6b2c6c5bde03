package hub

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/parleychat/parley/internal/store"
)

// Bridge relays events between the shared Redis channel and the local hub.
// Every instance runs one; published events loop back through Redis so all
// instances deliver the same stream in the same order.
type Bridge struct {
	redis  *store.RedisStore
	hub    *Hub
	logger zerolog.Logger
}

// NewBridge creates a bridge between the hub and Redis pub/sub.
func NewBridge(redis *store.RedisStore, h *Hub, logger zerolog.Logger) *Bridge {
	return &Bridge{
		redis:  redis,
		hub:    h,
		logger: logger.With().Str("component", "hub_bridge").Logger(),
	}
}

// Run consumes the shared channel until ctx is canceled. Call it in its own
// goroutine.
func (b *Bridge) Run(ctx context.Context) {
	sub := b.redis.SubscribeEvents(ctx)
	defer sub.Close()

	ch := sub.Channel()
	b.logger.Info().Msg("Event bridge started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Event bridge stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				b.logger.Warn().Msg("Event subscription closed")
				return
			}
			b.hub.Deliver([]byte(msg.Payload))
		}
	}
}
