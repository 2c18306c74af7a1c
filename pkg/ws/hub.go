package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DarshiBhavsar/chat-app-sub000/middleware/jwt"
	logger "github.com/DarshiBhavsar/chat-app-sub000/middleware/log"
)

// Events exchanged with socket clients.
const (
	EventUserJoined         = "user-joined"
	EventGetOnlineUsers     = "get-online-users"
	EventOnlineUsers        = "online-users"
	EventUserJoinedBroad    = "user-joined-broadcast"
	EventUserLeft           = "user-left"
	EventUserLeftBroad      = "user-left-broadcast"
	EventTyping             = "typing"
	EventStopTyping         = "stop-typing"
	EventUserTyping         = "user-typing"
	EventUserStopTyping     = "user-stop-typing"
	EventSendPrivateMessage = "send-private-message"
	EventSendMessage        = "send-message"
	EventReceivedMessage    = "received-message"
	EventError              = "error"
)

const persistTimeout = 2 * time.Second

// Frame is the wire envelope in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// TokenDecoder turns the token carried by user-joined into claims.
type TokenDecoder func(token string) (*jwt.Claims, error)

// GroupDirectory resolves group membership for send-message.
type GroupDirectory interface {
	MemberIDs(ctx context.Context, groupID uint) ([]uint, error)
}

// PresenceStore persists the online flag and last-seen time.
type PresenceStore interface {
	SetPresence(ctx context.Context, userID uint, online bool, at time.Time) error
}

type Options struct {
	Policy   DropPolicy
	Decode   TokenDecoder
	Groups   GroupDirectory
	Presence PresenceStore
	Logger   *logger.Logger
}

// Hub 维护活跃的连接，并负责在线状态与事件分发
type Hub struct {
	registry *Registry

	// 连接 ID -> 客户端
	clients map[string]*Client
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	decode   TokenDecoder
	groups   GroupDirectory
	presence PresenceStore
	log      *logger.Logger
	now      func() time.Time
}

func NewHub(opts Options) *Hub {
	if opts.Decode == nil {
		opts.Decode = jwt.DecodeUnverified
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Hub{
		registry:   NewRegistry(opts.Policy),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		decode:     opts.Decode,
		groups:     opts.Groups,
		presence:   opts.Presence,
		log:        opts.Logger,
		now:        time.Now,
	}
}

// Registry exposes the session registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Run owns connection bookkeeping until ctx ends, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			close(client.registered)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Connections reports the number of live connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NotifyUsers pushes one event to every listed user that has a registered
// connection, in order. Offline users are skipped.
func (h *Hub) NotifyUsers(userIDs []uint, event string, payload any) {
	if len(userIDs) == 0 {
		return
	}
	msg, err := encodeFrame(event, payload)
	if err != nil {
		h.log.Error("encode notification failed", zap.String("event", event), zap.Error(err))
		return
	}
	for _, userID := range userIDs {
		h.sendToUser(userID, msg)
	}
}

func (h *Hub) sendToUser(userID uint, msg []byte) bool {
	connID, ok := h.registry.Lookup(userID)
	if !ok {
		return false
	}
	return h.sendTo(connID, msg)
}

// sendTo queues msg on one connection. A connection whose buffer is full is
// closed; its read pump then unregisters it.
func (h *Hub) sendTo(connID string, msg []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[connID]
	if !ok {
		return false
	}
	select {
	case client.send <- msg:
		return true
	default:
		h.log.Warn("socket send buffer full, closing", zap.String("conn_id", connID))
		client.close()
		return false
	}
}

// broadcast queues msg on every connection except skip.
func (h *Hub) broadcast(msg []byte, skip string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, client := range h.clients {
		if id == skip {
			continue
		}
		select {
		case client.send <- msg:
		default:
			h.log.Warn("socket send buffer full, closing", zap.String("conn_id", id))
			client.close()
		}
	}
}

func (h *Hub) emit(event string, data any, skip string) {
	msg, err := encodeFrame(event, data)
	if err != nil {
		h.log.Error("encode event failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.broadcast(msg, skip)
}

// join identifies connID and announces it.
func (h *Hub) join(connID string, id Identity) {
	if old := h.registry.Identify(connID, id); old != "" {
		h.log.Info("connection superseded",
			zap.Uint("user_id", id.UserID),
			zap.String("conn_id", connID),
			zap.String("previous_conn_id", old),
		)
	}
	h.emit(EventOnlineUsers, h.registry.Online(), "")
	h.emit(EventUserJoinedBroad, id, "")
	h.persist(id.UserID, true)
}

// leave drops connID from the registry. The online list is always
// rebroadcast; the leave broadcast and the offline write only happen when the
// user's entry was actually removed.
func (h *Hub) leave(connID string) {
	id, removed := h.registry.Drop(connID)
	if id.UserID == 0 {
		return
	}
	h.emit(EventOnlineUsers, h.registry.Online(), "")
	if !removed {
		return
	}
	h.emit(EventUserLeftBroad, id, "")
	h.persist(id.UserID, false)
}

func (h *Hub) persist(userID uint, online bool) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := h.presence.SetPresence(ctx, userID, online, h.now()); err != nil {
		h.log.Warn("persist presence failed",
			zap.Uint("user_id", userID),
			zap.Bool("online", online),
			zap.Error(err),
		)
	}
}
