package chat

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"assistant/internal/attachments"
	"assistant/internal/conversation"
	"assistant/internal/metrics"
	"assistant/internal/models"
	"assistant/internal/notify"
)

const DefaultExpiryInterval = 5 * time.Minute

type Config struct {
	WelcomeMessage   string
	SystemPrompt     string
	MaxMessageLength int
	IdleTTL          time.Duration
	Attachments      attachments.Config
}

// Session is one live chat: a conversation, its staged attachments and the
// controller that ties them together.
type Session struct {
	ID           string
	CreatedAt    time.Time
	Conversation *conversation.Conversation
	Attachments  *attachments.Store
	Controller   *Controller

	lastActive atomic.Int64
}

func (s *Session) Touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) busy() bool {
	return s.Controller.State() == StateAwaitingReply || s.Attachments.Uploading()
}

type Manager struct {
	cfg         Config
	uploader    attachments.Uploader
	provisioner *attachments.Provisioner
	completer   Completer
	events      Events

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(cfg Config, uploader attachments.Uploader, provisioner *attachments.Provisioner, completer Completer, events Events) *Manager {
	if events == nil {
		events = NopEvents{}
	}
	return &Manager{
		cfg:         cfg,
		uploader:    uploader,
		provisioner: provisioner,
		completer:   completer,
		events:      events,
		sessions:    make(map[string]*Session),
	}
}

// Create starts a session whose conversation opens with the welcome message.
func (m *Manager) Create() *Session {
	id := uuid.NewString()
	notifier := notify.NotifierFunc(func(n notify.Notice) {
		m.events.Notice(id, n)
	})

	conv := conversation.New()
	conv.Append(models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   m.cfg.WelcomeMessage,
		Timestamp: time.Now().UTC(),
	})
	conv.OnAppend(func(msg models.Message) {
		m.events.MessageCreated(id, msg)
	})

	store := attachments.NewStore(m.cfg.Attachments, m.uploader, m.provisioner, notifier)
	store.OnChange(func(staged []models.Attachment) {
		m.events.AttachmentsChanged(id, staged)
	})

	controller := NewController(ControllerConfig{
		SystemPrompt:     m.cfg.SystemPrompt,
		MaxMessageLength: m.cfg.MaxMessageLength,
	}, conv, store, m.completer, notifier, func(typing bool) {
		m.events.TypingChanged(id, typing)
	})

	session := &Session{
		ID:           id,
		CreatedAt:    time.Now().UTC(),
		Conversation: conv,
		Attachments:  store,
		Controller:   controller,
	}
	session.Touch()

	m.mu.Lock()
	m.sessions[id] = session
	count := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	slog.Info("session created", "component", "chat", "session_id", id)

	return session
}

// Get returns the session and marks it active.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		session.Touch()
	}
	return session, ok
}

func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()

	if ok {
		metrics.ActiveSessions.Set(float64(count))
		m.events.SessionClosed(id)
		slog.Info("session deleted", "component", "chat", "session_id", id)
	}
	return ok
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Start expires idle sessions until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	if m.cfg.IdleTTL <= 0 {
		return
	}

	interval := DefaultExpiryInterval
	if m.cfg.IdleTTL < interval {
		interval = m.cfg.IdleTTL
	}

	slog.Info("starting session expiry", "component", "chat", "interval", interval, "idle_ttl", m.cfg.IdleTTL)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping session expiry", "component", "chat")
			return
		case now := <-ticker.C:
			m.expireIdle(now)
		}
	}
}

// expireIdle removes sessions idle since before now-IdleTTL. Sessions with
// a pending reply or upload are kept.
func (m *Manager) expireIdle(now time.Time) int {
	cutoff := now.Add(-m.cfg.IdleTTL)

	var expired []string
	m.mu.RLock()
	for id, session := range m.sessions {
		if session.LastActive().Before(cutoff) && !session.busy() {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		m.Delete(id)
	}
	if len(expired) > 0 {
		slog.Info("expired idle sessions", "component", "chat", "count", len(expired))
	}
	return len(expired)
}
