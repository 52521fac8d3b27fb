package conversation

import (
	"sync"

	"assistant/internal/models"
)

// Conversation is an append-only, ordered list of messages. Insertion order
// is display order.
type Conversation struct {
	mu        sync.RWMutex
	messages  []models.Message
	listeners []func(models.Message)
}

func New() *Conversation {
	return &Conversation{}
}

// Append adds msg to the end and then notifies listeners outside the lock.
func (c *Conversation) Append(msg models.Message) {
	msg = msg.Clone()

	c.mu.Lock()
	c.messages = append(c.messages, msg)
	listeners := c.listeners
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(msg.Clone())
	}
}

func (c *Conversation) Snapshot() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Message, len(c.messages))
	for i, msg := range c.messages {
		out[i] = msg.Clone()
	}
	return out
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// OnAppend registers fn to be called with every appended message.
func (c *Conversation) OnAppend(fn func(models.Message)) {
	c.mu.Lock()
	c.listeners = append(c.listeners[:len(c.listeners):len(c.listeners)], fn)
	c.mu.Unlock()
}
