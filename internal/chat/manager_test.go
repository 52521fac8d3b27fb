package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"assistant/internal/attachments"
	"assistant/internal/constants"
	"assistant/internal/models"
	"assistant/internal/notify"
)

type recordingEvents struct {
	NopEvents

	mu       sync.Mutex
	messages []models.Message
	typing   []bool
	notices  []notify.Notice
	closed   []string
}

func (e *recordingEvents) MessageCreated(_ string, msg models.Message) {
	e.mu.Lock()
	e.messages = append(e.messages, msg)
	e.mu.Unlock()
}

func (e *recordingEvents) TypingChanged(_ string, typing bool) {
	e.mu.Lock()
	e.typing = append(e.typing, typing)
	e.mu.Unlock()
}

func (e *recordingEvents) Notice(_ string, n notify.Notice) {
	e.mu.Lock()
	e.notices = append(e.notices, n)
	e.mu.Unlock()
}

func (e *recordingEvents) SessionClosed(id string) {
	e.mu.Lock()
	e.closed = append(e.closed, id)
	e.mu.Unlock()
}

func newTestManager(completer Completer, events Events) *Manager {
	return NewManager(Config{
		WelcomeMessage: constants.WelcomeMessage,
		IdleTTL:        time.Hour,
		Attachments: attachments.Config{
			MaxBytes:            1024,
			InlineImageMaxBytes: 512,
			Concurrency:         1,
		},
	}, nil, nil, completer, events)
}

func TestCreateSeedsWelcomeMessage(t *testing.T) {
	m := newTestManager(&fakeCompleter{reply: "ok"}, nil)

	session := m.Create()
	snap := session.Conversation.Snapshot()
	if len(snap) != 1 || snap[0].Role != models.RoleAssistant || snap[0].Content != "Hello! How can I help you today?" {
		t.Fatalf("initial conversation = %+v, want welcome message", snap)
	}

	got, ok := m.Get(session.ID)
	if !ok || got != session {
		t.Fatalf("Get(%q) = %v, %v", session.ID, got, ok)
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
}

func TestSessionEventsAreForwarded(t *testing.T) {
	events := &recordingEvents{}
	m := newTestManager(&fakeCompleter{reply: "Hi there"}, events)
	session := m.Create()

	if _, err := session.Controller.Send(context.Background(), "Hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.messages) != 2 || events.messages[0].Content != "Hello" || events.messages[1].Content != "Hi there" {
		t.Fatalf("messages = %+v, want user then assistant", events.messages)
	}
	if len(events.typing) != 2 || !events.typing[0] || events.typing[1] {
		t.Fatalf("typing = %v, want [true false]", events.typing)
	}
}

func TestDeleteRemovesSession(t *testing.T) {
	events := &recordingEvents{}
	m := newTestManager(&fakeCompleter{reply: "ok"}, events)
	session := m.Create()

	if !m.Delete(session.ID) {
		t.Fatal("Delete() = false, want true")
	}
	if m.Delete(session.ID) {
		t.Fatal("second Delete() = true, want false")
	}
	if _, ok := m.Get(session.ID); ok {
		t.Fatal("Get() found deleted session")
	}
	if len(events.closed) != 1 {
		t.Fatalf("SessionClosed calls = %d, want 1", len(events.closed))
	}
}

func TestExpireIdleKeepsBusySessions(t *testing.T) {
	completer := &fakeCompleter{release: make(chan struct{}), reply: "ok"}
	m := newTestManager(completer, nil)

	idle := m.Create()
	busy := m.Create()
	fresh := m.Create()

	turn, err := busy.Controller.Submit(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	old := time.Now().Add(-2 * time.Hour).UnixNano()
	idle.lastActive.Store(old)
	busy.lastActive.Store(old)

	if expired := m.expireIdle(time.Now()); expired != 1 {
		t.Fatalf("expireIdle() = %d, want 1", expired)
	}
	if _, ok := m.Get(idle.ID); ok {
		t.Fatal("idle session still present")
	}
	if _, ok := m.Get(busy.ID); !ok {
		t.Fatal("busy session expired")
	}
	if _, ok := m.Get(fresh.ID); !ok {
		t.Fatal("fresh session expired")
	}

	close(completer.release)
	turn.Wait()
}
