package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/parleychat/parley/internal/api/middleware"
	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/internal/hub"
	"github.com/parleychat/parley/internal/metrics"
	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/store"
)

// inboundFrame is what a room socket accepts from the client.
type inboundFrame struct {
	Content string `json:"content"`
}

// Server upgrades HTTP requests into live room and presence sessions.
type Server struct {
	store    store.DataStore
	redis    *store.RedisStore // may be nil
	hub      *hub.Hub
	messages *chat.MessageLog
	logger   zerolog.Logger
}

// NewServer creates the WebSocket server. redis may be nil.
func NewServer(st store.DataStore, redis *store.RedisStore, h *hub.Hub, messages *chat.MessageLog, logger zerolog.Logger) *Server {
	return &Server{
		store:    st,
		redis:    redis,
		hub:      h,
		messages: messages,
		logger:   logger.With().Str("component", "ws").Logger(),
	}
}

// ServeRoom handles GET /ws?room_id=N: a bidirectional session on one room.
// Inbound frames append to the room's log and fan out; outbound frames are
// the room's message events. The session flips the user's presence online
// on connect and offline on disconnect, exactly once each.
func (s *Server) ServeRoom(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		jsonError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	roomID, err := strconv.ParseInt(r.URL.Query().Get("room_id"), 10, 64)
	if err != nil || roomID <= 0 {
		jsonError(w, http.StatusBadRequest, "invalid room_id")
		return
	}

	room, err := s.store.GetRoom(r.Context(), roomID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if room == nil {
		jsonError(w, http.StatusNotFound, "room not found")
		return
	}

	isMember, err := s.store.IsMember(r.Context(), roomID, user.ID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !isMember {
		jsonError(w, http.StatusForbidden, "not a member of this room")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := newClient(conn)
	s.hub.SubscribeRoom(roomID, c)
	metrics.WSConnections.Inc()
	s.setPresence(user, true)

	go c.writePump()
	s.readRoomPump(c, user, room)

	s.hub.UnsubscribeRoom(roomID, c)
	c.Close()
	metrics.WSConnections.Dec()
	s.setPresence(user, false)
}

// ServePresence handles GET /ws/presence: a read-only stream of online and
// offline transitions across the whole service. Watching counts as being
// around, so the session brackets the watcher's own presence the same way a
// room session does.
func (s *Server) ServePresence(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		jsonError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := newClient(conn)
	s.hub.SubscribePresence(c)
	metrics.WSConnections.Inc()
	s.setPresence(user, true)

	go c.writePump()
	s.discardPump(c)

	s.hub.UnsubscribePresence(c)
	c.Close()
	metrics.WSConnections.Dec()
	s.setPresence(user, false)
}

// readRoomPump consumes inbound frames until the connection dies. Each
// frame goes through the message log's membership and blank-content rules;
// frames beyond the per-connection rate are dropped.
func (s *Server) readRoomPump(c *client, user *models.User, room *models.Room) {
	defer c.conn.Close()

	limiter := rate.NewLimiter(rate.Limit(5), 10)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Int64("user_id", user.ID).Msg("WebSocket closed unexpectedly")
			}
			return
		}

		if !limiter.Allow() {
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}

		msg, err := s.messages.Append(context.Background(), room.ID, user.ID, frame.Content)
		if err != nil {
			s.logger.Warn().Err(err).Int64("room_id", room.ID).Int64("user_id", user.ID).Msg("Dropping inbound message")
			continue
		}
		if msg == nil {
			continue
		}

		metrics.MessagesPosted.WithLabelValues(string(room.Type)).Inc()
		evt := hub.NewMessageEvent(msg, user.Username)
		if err := s.hub.Publish(context.Background(), evt); err != nil {
			s.logger.Error().Err(err).Msg("Failed to publish message event")
		}
	}
}

// discardPump keeps a read loop alive for control frames on a stream that
// accepts no client input.
func (s *Server) discardPump(c *client) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// setPresence updates the durable flag, the cache, and the live stream.
func (s *Server) setPresence(user *models.User, online bool) {
	ctx := context.Background()

	if err := s.store.SetUserOnline(ctx, user.ID, online); err != nil {
		s.logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to persist presence")
	}
	if s.redis != nil {
		if err := s.redis.SetPresence(ctx, user.ID, online); err != nil {
			s.logger.Warn().Err(err).Int64("user_id", user.ID).Msg("Failed to cache presence")
		}
	}

	evt := hub.NewPresenceEvent(user.ID, user.Username, online)
	if err := s.hub.Publish(ctx, evt); err != nil {
		s.logger.Error().Err(err).Msg("Failed to publish presence event")
	}
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
