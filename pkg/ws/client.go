package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second    // 允许写入消息到对端的最大时间
	pongWait       = 60 * time.Second    // 允许读取下一个 pong 消息的最大时间
	pingPeriod     = (pongWait * 9) / 10 // 发送 ping 到对端的周期。必须小于 pongWait
	maxMessageSize = 64 * 1024           // 允许来自对端的最大消息大小
	sendBuffer     = 256
	lookupTimeout  = 3 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client 代表一个 WebSocket 连接
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte // 缓冲通道，只由 Hub.Run 关闭

	registered chan struct{}
	closeOnce  sync.Once
}

type joinData struct {
	Token string `json:"token"`
}

type typingData struct {
	To *uint `json:"to,omitempty"`
}

type privateMessageData struct {
	To      uint            `json:"to"`
	Message json.RawMessage `json:"message"`
}

type groupMessageData struct {
	GroupID uint            `json:"groupId"`
	Message json.RawMessage `json:"message"`
}

// ReceivedMessage is the payload of received-message.
type ReceivedMessage struct {
	From    Identity        `json:"from"`
	GroupID uint            `json:"groupId,omitempty"`
	Message json.RawMessage `json:"message"`
}

func (c *Client) close() {
	c.closeOnce.Do(func() { _ = c.conn.Close() })
}

// readPump 读取客户端事件直到连接断开
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.hub.leave(c.id)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("socket read failed", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.reply(EventError, gin.H{"message": "malformed frame"})
			continue
		}
		c.handle(frame)
	}
}

func (c *Client) handle(frame Frame) {
	h := c.hub

	switch frame.Event {
	case EventUserJoined:
		var data joinData
		if !c.decode(frame, &data) {
			return
		}
		claims, err := h.decode(data.Token)
		if err != nil {
			c.reply(EventError, gin.H{"message": "invalid token"})
			return
		}
		h.join(c.id, Identity{UserID: claims.UserID, UserName: claims.UserName})

	case EventGetOnlineUsers:
		c.reply(EventOnlineUsers, h.registry.Online())

	case EventUserLeft:
		h.leave(c.id)

	case EventTyping, EventStopTyping:
		id, ok := c.identity()
		if !ok {
			return
		}
		var data typingData
		if len(frame.Data) > 0 && !c.decode(frame, &data) {
			return
		}
		out := EventUserTyping
		if frame.Event == EventStopTyping {
			out = EventUserStopTyping
		}
		msg, err := encodeFrame(out, id)
		if err != nil {
			return
		}
		if data.To != nil {
			h.sendToUser(*data.To, msg)
			return
		}
		h.broadcast(msg, c.id)

	case EventSendPrivateMessage:
		id, ok := c.identity()
		if !ok {
			return
		}
		var data privateMessageData
		if !c.decode(frame, &data) {
			return
		}
		msg, err := encodeFrame(EventReceivedMessage, ReceivedMessage{From: id, Message: data.Message})
		if err != nil {
			return
		}
		h.sendToUser(data.To, msg)

	case EventSendMessage:
		id, ok := c.identity()
		if !ok {
			return
		}
		var data groupMessageData
		if !c.decode(frame, &data) {
			return
		}
		c.sendGroup(id, data)

	default:
		h.log.Debug("unknown socket event", zap.String("event", frame.Event), zap.String("conn_id", c.id))
	}
}

func (c *Client) sendGroup(from Identity, data groupMessageData) {
	h := c.hub
	if h.groups == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	members, err := h.groups.MemberIDs(ctx, data.GroupID)
	if err != nil {
		h.log.Warn("resolve group members failed", zap.Uint("group_id", data.GroupID), zap.Error(err))
		return
	}
	if !slices.Contains(members, from.UserID) {
		c.reply(EventError, gin.H{"message": "not a member of this group"})
		return
	}

	msg, err := encodeFrame(EventReceivedMessage, ReceivedMessage{
		From:    from,
		GroupID: data.GroupID,
		Message: data.Message,
	})
	if err != nil {
		return
	}
	for _, userID := range members {
		if userID == from.UserID {
			continue
		}
		h.sendToUser(userID, msg)
	}
}

// identity returns the caller's identity, replying with an error when the
// connection has not sent user-joined yet.
func (c *Client) identity() (Identity, bool) {
	id, ok := c.hub.registry.IdentityOf(c.id)
	if !ok {
		c.reply(EventError, gin.H{"message": "identify first"})
	}
	return id, ok
}

func (c *Client) decode(frame Frame, v any) bool {
	if err := json.Unmarshal(frame.Data, v); err != nil {
		c.reply(EventError, gin.H{"message": "invalid " + frame.Event + " payload"})
		return false
	}
	return true
}

func (c *Client) reply(event string, data any) {
	msg, err := encodeFrame(event, data)
	if err != nil {
		return
	}
	c.hub.sendTo(c.id, msg)
}

// writePump 将 Hub 投递的消息写入连接，并定期发送 ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 每个事件一帧，客户端按帧解析
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request and attaches a new client to the hub. The
// connection starts unidentified; user-joined binds it to a user.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),

		registered: make(chan struct{}),
	}
	select {
	case hub.register <- client:
		<-client.registered
	case <-hub.done:
		_ = conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

// Handler adapts ServeWs to gin.
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ServeWs(h, c.Writer, c.Request)
	}
}
