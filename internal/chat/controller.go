package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"assistant/internal/attachments"
	"assistant/internal/completion"
	"assistant/internal/constants"
	"assistant/internal/conversation"
	"assistant/internal/models"
	"assistant/internal/notify"
)

var (
	ErrReplyPending    = errors.New("a reply is still pending")
	ErrUploadsInFlight = attachments.ErrUploadsInFlight
	ErrEmptyMessage    = errors.New("message has no text and no attachments")
	ErrMessageTooLong  = errors.New("message is too long")
)

type State string

const (
	StateIdle          State = "idle"
	StateAwaitingReply State = "awaitingReply"
)

type Completer interface {
	Complete(ctx context.Context, history []models.Message, locators []string) (string, error)
}

// Turn is the handle of one submitted message.
type Turn struct {
	UserMessage models.Message

	done  chan struct{}
	reply models.Message
	err   error
}

func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Wait returns the assistant message appended for this turn. err is the
// completion failure, in which case the message holds the apology text.
func (t *Turn) Wait() (models.Message, error) {
	<-t.done
	return t.reply, t.err
}

type ControllerConfig struct {
	SystemPrompt     string
	MaxMessageLength int
}

// Controller drives one conversation: at most one completion call is
// outstanding at a time, and every accepted user message gets exactly one
// assistant message.
type Controller struct {
	cfg       ControllerConfig
	conv      *conversation.Conversation
	store     *attachments.Store
	completer Completer
	notifier  notify.Notifier
	typing    func(bool)
	now       func() time.Time

	mu    sync.Mutex
	state State
}

func NewController(cfg ControllerConfig, conv *conversation.Conversation, store *attachments.Store, completer Completer, notifier notify.Notifier, typing func(bool)) *Controller {
	if notifier == nil {
		notifier = notify.Discard
	}
	if typing == nil {
		typing = func(bool) {}
	}
	return &Controller{
		cfg:       cfg,
		conv:      conv,
		store:     store,
		completer: completer,
		notifier:  notifier,
		typing:    typing,
		now:       time.Now,
		state:     StateIdle,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Submit appends the user message and starts the completion in the
// background. Rejected submissions change nothing.
func (c *Controller) Submit(ctx context.Context, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if c.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(text) > c.cfg.MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateAwaitingReply {
		return nil, ErrReplyPending
	}

	var staged []models.Attachment
	if c.store != nil {
		if c.store.Uploading() {
			return nil, ErrUploadsInFlight
		}
		if text == "" && len(c.store.Staged()) == 0 {
			return nil, ErrEmptyMessage
		}
		taken, err := c.store.Take()
		if err != nil {
			return nil, err
		}
		staged = taken
	} else if text == "" {
		return nil, ErrEmptyMessage
	}

	locators := make([]string, 0, len(staged))
	for _, a := range staged {
		locators = append(locators, a.Locator)
	}

	userMsg := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: c.now().UTC(),
		MediaRefs: locators,
	}
	c.conv.Append(userMsg)

	c.state = StateAwaitingReply
	c.typing(true)

	turn := &Turn{UserMessage: userMsg.Clone(), done: make(chan struct{})}
	go c.complete(context.WithoutCancel(ctx), turn, locators)

	return turn, nil
}

// Send submits text and waits for the reply.
func (c *Controller) Send(ctx context.Context, text string) (*Turn, error) {
	turn, err := c.Submit(ctx, text)
	if err != nil {
		return nil, err
	}
	turn.Wait()
	return turn, nil
}

func (c *Controller) complete(ctx context.Context, turn *Turn, locators []string) {
	var (
		reply string
		err   error
	)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic during completion", "component", "chat", "panic", r)
			reply, err = "", completion.TransportError("completion panicked", fmt.Errorf("%v", r))
		}
		c.settle(turn, reply, err)
	}()

	reply, err = c.completer.Complete(ctx, c.history(), locators)
}

// settle appends the assistant message for turn and returns to idle.
func (c *Controller) settle(turn *Turn, reply string, err error) {
	content := reply
	if err != nil || strings.TrimSpace(reply) == "" {
		content = constants.ApologyMessage
		if err == nil {
			err = completion.EmptyError("reply contained no text")
		}
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   content,
		Timestamp: c.now().UTC(),
	}
	c.conv.Append(msg)

	if err != nil {
		c.notifier.Notify(notify.Error("Error", completion.Describe(err)))
	}

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	c.typing(false)

	turn.reply = msg
	turn.err = err
	close(turn.done)
}

func (c *Controller) history() []models.Message {
	snapshot := c.conv.Snapshot()
	if c.cfg.SystemPrompt == "" {
		return snapshot
	}
	history := make([]models.Message, 0, len(snapshot)+1)
	history = append(history, models.Message{Role: models.RoleSystem, Content: c.cfg.SystemPrompt})
	return append(history, snapshot...)
}
