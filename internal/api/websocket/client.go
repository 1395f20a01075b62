package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/auth"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the auth message
	authWait = 10 * time.Second

	maxMessageSize = 8192
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The rig is operated from the shop floor network only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client represents a WebSocket client connection
type Client struct {
	id     uuid.UUID
	hub    *Hub
	conn   *websocket.Conn
	logger *zap.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool

	// Owned by readPump
	authenticated bool
	registered    bool
	permissions   []auth.Permission
	username      string
}

func (c *Client) remoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// enqueue queues data without blocking. It reports false when the send
// buffer is full.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close ends the write pump after it has flushed the queued messages.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal reply", zap.Error(err))
		return
	}
	if !c.enqueue(data) {
		c.logger.Warn("Client send buffer full, reply dropped", zap.String("client_id", c.id.String()))
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		if c.registered {
			c.hub.remove(c)
			return
		}
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if !c.authenticated {
		c.conn.SetReadDeadline(time.Now().Add(authWait))
	} else {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.remoteAddr()))
			}
			return
		}

		// First message MUST be authentication
		if !c.authenticated {
			if !c.authenticate(msg) {
				return
			}
			c.conn.SetReadDeadline(time.Now().Add(pongWait))
			if c.registered = c.hub.add(c); !c.registered {
				return
			}
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) authenticate(msg ClientMessage) bool {
	if msg.Type != MessageTypeAuth {
		c.reply(NewMessage(MessageTypeAuthFailed, "first message must be authentication"))
		return false
	}
	if msg.Token == "" {
		c.reply(NewMessage(MessageTypeAuthFailed, "missing token in auth message"))
		return false
	}

	claims, perms, err := c.hub.authService.ValidateToken(msg.Token)
	if err != nil {
		c.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remote_addr", c.remoteAddr()))
		c.reply(NewMessage(MessageTypeAuthFailed, "invalid or expired token"))
		return false
	}

	c.authenticated = true
	c.permissions = perms
	c.username = claims.Username
	c.reply(NewMessage(MessageTypeAuthSuccess, map[string]any{"permissions": perms}))
	c.logger.Info("WebSocket client authenticated",
		zap.String("client_id", c.id.String()),
		zap.String("username", claims.Username))
	return true
}

func (c *Client) handleMessage(msg ClientMessage) {
	if msg.Type != MessageTypeCommand {
		c.logger.Debug("Ignoring client message",
			zap.String("client_id", c.id.String()),
			zap.String("type", string(msg.Type)))
		return
	}

	result := CommandResultData{Control: msg.Control, Action: msg.Action}
	switch {
	case c.hub.commands == nil:
		result.Error = "commands not available"
	case !auth.HasPermission(c.permissions, auth.PermOperator):
		result.Error = "insufficient permissions"
	default:
		if err := c.hub.commands(msg.Control, msg.Action); err != nil {
			result.Error = err.Error()
		} else {
			c.logger.Info("Operator command via websocket",
				zap.String("username", c.username),
				zap.String("control", msg.Control),
				zap.String("action", msg.Action))
		}
	}
	c.reply(NewMessage(MessageTypeCommandResult, result))
}

// writePump handles writing messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Closed by the hub or by readPump
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs handles WebSocket upgrade requests
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		id:     uuid.New(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: hub.logger,
	}

	if !hub.authService.Enabled() {
		client.authenticated = true
		client.permissions = auth.RoleToPermissions(string(auth.PermAdmin))
		client.registered = hub.add(client)
	}

	go client.writePump()
	go client.readPump()
}
