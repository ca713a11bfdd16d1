// Package realtime maintains WebSocket presence per live session. Joining a
// session's room marks the participant as joined; closing the last connection
// marks them as left. Broadcasts fan out locally and over Redis pub/sub so
// multiple instances see the same events.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait (seconds) drive the heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// PresenceHandler is invoked when a user's first connection to a session
// opens (joined) or their last connection closes (left).
type PresenceHandler func(sessionID, userID uuid.UUID)

// RedisPublisher publishes session events for cross-instance broadcast.
type RedisPublisher interface {
	PublishSessionEvent(sessionID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to a session's channel and invokes handler for
// incoming events.
type RedisSubscriber interface {
	SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains session rooms and per-user connection counts.
type Hub struct {
	mu        sync.RWMutex
	rooms     map[uuid.UUID]map[string]*Client // sessionID -> clientID -> client
	userConns map[uuid.UUID]map[uuid.UUID]int  // sessionID -> userID -> open connections
	subs      map[uuid.UUID]func()             // cancel Redis subscription per session
	logger    *zap.Logger
	redisPub  RedisPublisher
	redisSub  RedisSubscriber
	onJoin    PresenceHandler
	onLeave   PresenceHandler
}

// NewHub creates a WebSocket hub. redisPub/redisSub may be nil for
// single-instance deployments.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:     make(map[uuid.UUID]map[string]*Client),
		userConns: make(map[uuid.UUID]map[uuid.UUID]int),
		subs:      make(map[uuid.UUID]func()),
		logger:    logger,
		redisPub:  redisPub,
		redisSub:  redisSub,
	}
}

// SetPresenceHandlers wires the attendance callbacks. Reconnects do not
// retrigger onJoin: it fires only for a user's first open connection, and
// onLeave only when their last connection closes.
func (h *Hub) SetPresenceHandlers(onJoin, onLeave PresenceHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onJoin = onJoin
	h.onLeave = onLeave
}

// Register adds a client to its session room, starting the Redis
// subscription when the room opens.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.SessionID] == nil {
		h.rooms[c.SessionID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeSession(c.SessionID, func(event string, payload []byte) {
				h.BroadcastToSession(c.SessionID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.SessionID] = cancel
			} else {
				h.logger.Warn("session subscribe failed", zap.Error(err), zap.String("session_id", c.SessionID.String()))
			}
		}
	}
	h.rooms[c.SessionID][c.ID] = c
	if h.userConns[c.SessionID] == nil {
		h.userConns[c.SessionID] = make(map[uuid.UUID]int)
	}
	h.userConns[c.SessionID][c.UserID]++
	firstConn := h.userConns[c.SessionID][c.UserID] == 1
	onJoin := h.onJoin
	h.mu.Unlock()

	if firstConn && onJoin != nil {
		onJoin(c.SessionID, c.UserID)
	}
	h.logger.Debug("client joined session room",
		zap.String("client_id", c.ID),
		zap.String("session_id", c.SessionID.String()),
		zap.String("user_id", c.UserID.String()))
}

// Unregister removes a client, closing the room and its Redis subscription
// when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	lastConn := false
	if m, ok := h.rooms[c.SessionID]; ok {
		if _, present := m[c.ID]; present {
			delete(m, c.ID)
			if users := h.userConns[c.SessionID]; users != nil {
				users[c.UserID]--
				if users[c.UserID] <= 0 {
					delete(users, c.UserID)
					lastConn = true
				}
			}
			if len(m) == 0 {
				delete(h.rooms, c.SessionID)
				delete(h.userConns, c.SessionID)
				if cancel, ok := h.subs[c.SessionID]; ok {
					cancel()
					delete(h.subs, c.SessionID)
				}
			}
		}
	}
	onLeave := h.onLeave
	h.mu.Unlock()

	if lastConn && onLeave != nil {
		onLeave(c.SessionID, c.UserID)
	}
	h.logger.Debug("client left session room",
		zap.String("client_id", c.ID),
		zap.String("session_id", c.SessionID.String()))
}

// BroadcastToSession sends a message to all local clients in a session room.
func (h *Hub) BroadcastToSession(sessionID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	case nil:
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	// Snapshot the room under the lock; Register/Unregister mutate the map
	// concurrently and iterating it unlocked races with them.
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[sessionID]))
	for _, c := range h.rooms[sessionID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// BroadcastToSessionAndPublish sends to local clients and publishes to Redis
// for other instances.
func (h *Hub) BroadcastToSessionAndPublish(sessionID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.BroadcastToSession(sessionID, event, json.RawMessage(data))
	if h.redisPub != nil {
		if err := h.redisPub.PublishSessionEvent(sessionID, event, data); err != nil {
			h.logger.Warn("session event publish failed", zap.Error(err), zap.String("event", event))
		}
	}
}

// AudienceCount returns the number of connected clients in a session room.
func (h *Hub) AudienceCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}
