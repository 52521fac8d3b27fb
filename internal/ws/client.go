package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"assistant/internal/chat"
	"assistant/internal/constants"
	"assistant/internal/models"
)

// ClientState represents the lifecycle state of a WebSocket client
type ClientState int32

const (
	ClientStateConnected  ClientState = iota // WS connected, not yet registered
	ClientStateSubscribed                    // Receiving session events, processing commands
	ClientStateClosing                       // Shutdown initiated
	ClientStateClosed                        // Terminal
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 15 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 65536

	// Timeout for hub registration
	registerTimeout = 5 * time.Second

	// Rate limiting intervals
	messageRateLimit = 200 * time.Millisecond // 5 messages per second
)

var ErrRegisterTimeout = errors.New("hub registration timed out")

// Client represents a single WebSocket connection bound to one chat session
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan *WSMessage
	connCloseOnce sync.Once

	state atomic.Int32

	session      *chat.Session
	connectionID string

	// DroppedMessages tracks how many messages have been dropped due to full buffer
	DroppedMessages int64

	// Only accessed from the ReadPump goroutine.
	lastMessage time.Time
}

func NewClient(hub *Hub, conn *websocket.Conn, session *chat.Session) *Client {
	c := &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan *WSMessage, constants.WSClientSendBufferSize),
		session:      session,
		connectionID: uuid.NewString(),
	}
	c.state.Store(int32(ClientStateConnected))
	return c
}

// Close performs cleanup for the client, ensuring it only happens once
func (c *Client) Close() {
	c.transitionTo(ClientStateClosing)
	c.closeConn()
	c.transitionTo(ClientStateClosed)
}

func (c *Client) closeConn() {
	c.connCloseOnce.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// SendHello sends the HELLO message to initiate the connection
func (c *Client) SendHello() {
	c.send <- &WSMessage{
		Op:   OpHello,
		Data: HelloPayload{HeartbeatIntervalMS: pingPeriod.Milliseconds()},
	}
}

// Subscribe registers the client with the hub. The hub queues READY with
// the session snapshot before any later event.
func (c *Client) Subscribe() error {
	if !c.transitionTo(ClientStateSubscribed) {
		return errors.New("client is not connected")
	}

	done := make(chan struct{})
	select {
	case c.hub.registerSync <- registerRequest{client: c, done: done}:
		select {
		case <-done:
		case <-time.After(registerTimeout):
			return ErrRegisterTimeout
		}
	case <-time.After(registerTimeout):
		return ErrRegisterTimeout
	}

	slog.Info("client subscribed", "component", "ws", "session_id", c.session.ID, "connection_id", c.connectionID)
	return nil
}

func (c *Client) readyMessage() *WSMessage {
	s := c.session
	staged := s.Attachments.Staged()
	if staged == nil {
		staged = []models.Attachment{}
	}
	return &WSMessage{
		Op: OpReady,
		Data: ReadyPayload{
			ProtocolVersion: ProtocolVersion,
			SessionID:       s.ID,
			ConnectionID:    c.connectionID,
			State:           s.Controller.State(),
			Messages:        models.NewMessageViews(s.Conversation.Snapshot()),
			Attachments:     staged,
			Uploading:       s.Attachments.Uploading(),
		},
	}
}

func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.shutdown:
		}
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read failed", "component", "ws", "session_id", c.session.ID, "error", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Debug("ignoring malformed message", "component", "ws", "error", err)
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel after queueing its last messages
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				slog.Warn("websocket write failed", "component", "ws", "session_id", c.session.ID, "error", err)
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

func (c *Client) handleMessage(msg *WSMessage) {
	switch msg.Op {
	case OpDispatch:
		c.handleDispatch(msg)
	default:
		slog.Debug("unknown op code", "component", "ws", "op", msg.Op)
	}
}

// handleDispatch routes DISPATCH messages by their type
func (c *Client) handleDispatch(msg *WSMessage) {
	if !c.IsSubscribed() {
		return
	}
	switch msg.Type {
	case CmdMessageSend:
		c.handleMessageSend(msg)
	case CmdAttachmentRemove:
		c.handleAttachmentRemove(msg)
	case CmdAttachmentsClear:
		c.session.Attachments.Clear()
	default:
		slog.Debug("unknown dispatch type", "component", "ws", "type", msg.Type)
	}
}

func (c *Client) handleMessageSend(msg *WSMessage) {
	data, ok := msg.Data.(map[string]interface{})
	if !ok {
		return
	}

	content, _ := data["content"].(string)
	nonce, _ := data["nonce"].(string)

	// Rate limit check
	now := time.Now()
	if now.Sub(c.lastMessage) < messageRateLimit {
		c.sendError(ErrCodeRateLimited, "Sending too fast", nonce)
		return
	}
	c.lastMessage = now

	c.session.Touch()
	turn, err := c.session.Controller.Submit(context.Background(), content)
	if err != nil {
		c.sendError(chat.ErrorCode(err), err.Error(), nonce)
		return
	}

	c.sendDirect(&WSMessage{
		Op:   OpDispatch,
		Type: EventMessageAck,
		Data: MessageAckPayload{ID: turn.UserMessage.ID, Nonce: nonce},
	})
}

func (c *Client) handleAttachmentRemove(msg *WSMessage) {
	data, ok := msg.Data.(map[string]interface{})
	if !ok {
		return
	}
	index, ok := data["index"].(float64)
	if !ok || index != float64(int(index)) {
		c.sendError(ErrCodeInvalidRequest, "index must be an integer", "")
		return
	}
	if !c.session.Attachments.Remove(int(index)) {
		c.sendError(ErrCodeNotFound, "No staged attachment at that index", "")
	}
}

func (c *Client) sendError(code, message, nonce string) {
	c.sendDirect(&WSMessage{
		Op:   OpDispatch,
		Type: EventError,
		Data: ErrorPayload{Code: code, Message: message, Nonce: nonce},
	})
}

// sendDirect queues a reply for this client only. The hub owns the send
// channel once it may close it, so the write goes through its read lock.
func (c *Client) sendDirect(msg *WSMessage) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	c.hub.sendToClientLocked(c, msg)
}

func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

func (c *Client) IsSubscribed() bool {
	return c.State() == ClientStateSubscribed
}

// isValidClientTransition defines the allowed state machine edges
func isValidClientTransition(from, to ClientState) bool {
	switch from {
	case ClientStateConnected:
		return to == ClientStateSubscribed || to == ClientStateClosing
	case ClientStateSubscribed:
		return to == ClientStateClosing
	case ClientStateClosing:
		return to == ClientStateClosed
	case ClientStateClosed:
		return false
	}
	return false
}

// transitionTo attempts an atomic state transition. Returns false if invalid.
func (c *Client) transitionTo(newState ClientState) bool {
	for {
		current := ClientState(c.state.Load())
		if !isValidClientTransition(current, newState) {
			return false
		}
		if c.state.CompareAndSwap(int32(current), int32(newState)) {
			return true
		}
	}
}

// CloseSend closes the send channel. WritePump drains what is queued, then
// closes the connection.
func (c *Client) CloseSend() {
	if c.transitionTo(ClientStateClosing) {
		close(c.send)
	}
}

// Serve runs a connection for session until either side closes it.
func Serve(hub *Hub, conn *websocket.Conn, session *chat.Session) error {
	client := NewClient(hub, conn, session)
	client.SendHello()
	if err := client.Subscribe(); err != nil {
		client.Close()
		return err
	}

	go client.WritePump()
	go client.ReadPump()
	return nil
}
