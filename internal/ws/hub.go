package ws

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"assistant/internal/chat"
	"assistant/internal/constants"
	"assistant/internal/metrics"
	"assistant/internal/models"
	"assistant/internal/notify"
)

const (
	// maxDroppedMessagesBeforeDisconnect is the threshold for disconnecting slow clients
	maxDroppedMessagesBeforeDisconnect = 100
)

// registerRequest is used for synchronous registration with a callback
type registerRequest struct {
	client *Client
	done   chan struct{}
}

// dispatch is a message addressed to every client of one session.
type dispatch struct {
	sessionID string
	msg       *WSMessage
	closeAll  bool
}

// Hub fans session events out to the WebSocket clients subscribed to that
// session. It implements chat.Events.
type Hub struct {
	clients        map[*Client]bool
	sessionClients map[string]map[*Client]bool
	broadcast      chan *dispatch
	registerSync   chan registerRequest
	unregister     chan *Client
	shutdown       chan struct{}
	shutdownOnce   sync.Once
	sequence       atomic.Int64
	mu             sync.RWMutex
}

var _ chat.Events = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		sessionClients: make(map[string]map[*Client]bool),
		broadcast:      make(chan *dispatch, constants.WSBroadcastBufferSize),
		registerSync:   make(chan registerRequest),
		unregister:     make(chan *Client),
		shutdown:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.shutdown:
			h.mu.Lock()
			for client := range h.clients {
				client.CloseSend()
				delete(h.clients, client)
			}
			h.sessionClients = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			slog.Info("shutdown complete", "component", "hub")
			return

		case req := <-h.registerSync:
			// READY is built and queued from the loop so it precedes every later dispatch.
			ready := req.client.readyMessage()
			h.mu.Lock()
			sessionID := req.client.session.ID
			h.clients[req.client] = true
			if h.sessionClients[sessionID] == nil {
				h.sessionClients[sessionID] = make(map[*Client]bool)
			}
			h.sessionClients[sessionID][req.client] = true
			h.sendToClientLocked(req.client, ready)
			count := len(h.clients)
			h.mu.Unlock()

			metrics.WebSocketClients.Set(float64(count))
			close(req.done)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.removeClientLocked(client)
				client.CloseSend()
			}
			count := len(h.clients)
			h.mu.Unlock()

			metrics.WebSocketClients.Set(float64(count))

		case d := <-h.broadcast:
			if d.closeAll {
				h.closeSession(d.sessionID, d.msg)
				continue
			}
			h.mu.RLock()
			for client := range h.sessionClients[d.sessionID] {
				h.sendToClientLocked(client, d.msg)
			}
			h.mu.RUnlock()
		}
	}
}

// Caller must hold the write lock on h.mu.
func (h *Hub) removeClientLocked(client *Client) {
	delete(h.clients, client)
	sessionID := client.session.ID
	if set, ok := h.sessionClients[sessionID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.sessionClients, sessionID)
		}
	}
}

func (h *Hub) closeSession(sessionID string, msg *WSMessage) {
	h.mu.Lock()
	for client := range h.sessionClients[sessionID] {
		select {
		case client.send <- msg:
		default:
		}
		delete(h.clients, client)
		client.CloseSend()
	}
	delete(h.sessionClients, sessionID)
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(count))
}

// Caller must hold at least a read lock on h.mu.
func (h *Hub) sendToClientLocked(client *Client, msg *WSMessage) {
	if !client.IsSubscribed() {
		return
	}
	select {
	case client.send <- msg:
		// Message sent successfully
	default:
		// Client buffer full - track the drop
		dropped := atomic.AddInt64(&client.DroppedMessages, 1)

		// Log warning periodically (every 10 drops)
		if dropped%10 == 1 {
			slog.Warn("dropped messages for slow client", "component", "hub", "dropped", dropped, "session_id", client.session.ID)
		}

		// Disconnect clients that fall too far behind
		if dropped >= maxDroppedMessagesBeforeDisconnect {
			slog.Warn("disconnecting slow client", "component", "hub", "session_id", client.session.ID, "dropped", dropped)
			// Close will be handled by the client's pumps
			client.Close()
		}
	}
}

// nextSequence must not take h.mu: events are raised while session locks are held.
func (h *Hub) nextSequence() int64 {
	return h.sequence.Add(1)
}

// Dispatch queues a DISPATCH event for every client of the session. Events
// are dropped when the hub is saturated; the session state itself is never
// affected.
func (h *Hub) Dispatch(sessionID, eventType string, data interface{}) {
	seq := h.nextSequence()
	h.enqueue(&dispatch{
		sessionID: sessionID,
		msg: &WSMessage{
			Op:   OpDispatch,
			Type: eventType,
			Data: data,
			Seq:  &seq,
		},
	})
}

func (h *Hub) enqueue(d *dispatch) {
	select {
	case h.broadcast <- d:
	case <-h.shutdown:
	default:
		slog.Warn("hub saturated, dropping event", "component", "hub", "session_id", d.sessionID, "type", d.msg.Type)
	}
}

func (h *Hub) SessionClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessionClients[sessionID])
}

func (h *Hub) MessageCreated(sessionID string, msg models.Message) {
	h.Dispatch(sessionID, EventMessageCreate, models.NewMessageView(msg))
}

func (h *Hub) TypingChanged(sessionID string, typing bool) {
	eventType := EventTypingStop
	if typing {
		eventType = EventTypingStart
	}
	h.Dispatch(sessionID, eventType, TypingPayload{SessionID: sessionID})
}

func (h *Hub) Notice(sessionID string, n notify.Notice) {
	h.Dispatch(sessionID, EventNotification, n)
}

func (h *Hub) AttachmentsChanged(sessionID string, staged []models.Attachment) {
	if staged == nil {
		staged = []models.Attachment{}
	}
	h.Dispatch(sessionID, EventAttachmentsUpdate, AttachmentsUpdatePayload{Attachments: staged})
}

// SessionClosed tells the session's clients it is gone and disconnects them.
func (h *Hub) SessionClosed(sessionID string) {
	h.enqueue(&dispatch{
		sessionID: sessionID,
		msg:       &WSMessage{Op: OpInvalidSession, Data: InvalidSessionPayload{Resumable: false}},
		closeAll:  true,
	})
}

func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() { close(h.shutdown) })
}
