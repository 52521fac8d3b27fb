package chat

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"sync"
	"testing"
	"time"

	"assistant/internal/attachments"
	"assistant/internal/completion"
	"assistant/internal/constants"
	"assistant/internal/conversation"
	"assistant/internal/models"
	"assistant/internal/notify"
	"assistant/internal/storage"
)

type fakeCompleter struct {
	mu       sync.Mutex
	release  chan struct{}
	reply    string
	err      error
	panicMsg string
	calls    int
	history  []models.Message
	locators []string
}

func (f *fakeCompleter) Complete(_ context.Context, history []models.Message, locators []string) (string, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.calls++
	f.history = history
	f.locators = locators
	f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.reply, f.err
}

type blockingUploader struct {
	release chan struct{}
}

func (u *blockingUploader) Upload(_ context.Context, bucket, name string, r io.Reader, _ storage.UploadOptions) (*storage.Object, error) {
	<-u.release
	_, _ = io.Copy(io.Discard, r)
	return &storage.Object{Bucket: bucket, Name: name}, nil
}

func (u *blockingUploader) PublicURL(bucket, name string) string {
	return "http://files.test/" + bucket + "/" + name
}

func newTestController(completer Completer, uploader attachments.Uploader, cfg ControllerConfig) (*Controller, *conversation.Conversation, *attachments.Store, *notify.Recorder) {
	conv := conversation.New()
	conv.Append(models.Message{ID: "welcome", Role: models.RoleAssistant, Content: constants.WelcomeMessage})

	rec := &notify.Recorder{}
	store := attachments.NewStore(attachments.Config{
		Bucket:              "media-uploads",
		MaxBytes:            10 * 1024 * 1024,
		InlineImageMaxBytes: 500 * 1024,
		AllowedMimeTypes:    []string{"image/*", "text/plain"},
		Concurrency:         2,
	}, uploader, nil, rec)

	return NewController(cfg, conv, store, completer, rec, nil), conv, store, rec
}

func smallPNG(t *testing.T) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestSendHelloScenario(t *testing.T) {
	completer := &fakeCompleter{release: make(chan struct{}), reply: "Hi there"}
	c, conv, _, _ := newTestController(completer, nil, ControllerConfig{})

	turn, err := c.Submit(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	snap := conv.Snapshot()
	if len(snap) != 2 || snap[1].Role != models.RoleUser || snap[1].Content != "Hello" || len(snap[1].MediaRefs) != 0 {
		t.Fatalf("snapshot after submit = %+v, want welcome then user Hello", snap)
	}
	if c.State() != StateAwaitingReply {
		t.Fatalf("State() = %q, want awaitingReply", c.State())
	}

	close(completer.release)
	reply, err := turn.Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if reply.Role != models.RoleAssistant || reply.Content != "Hi there" {
		t.Fatalf("reply = %+v, want assistant Hi there", reply)
	}
	if c.State() != StateIdle {
		t.Fatalf("State() = %q, want idle", c.State())
	}
	if conv.Len() != 3 {
		t.Fatalf("conversation length = %d, want 3", conv.Len())
	}
}

func TestSubmitWhileAwaitingIsRejected(t *testing.T) {
	completer := &fakeCompleter{release: make(chan struct{}), reply: "ok"}
	c, conv, _, _ := newTestController(completer, nil, ControllerConfig{})

	turn, err := c.Submit(context.Background(), "first")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	before := conv.Len()
	if _, err := c.Submit(context.Background(), "second"); !errors.Is(err, ErrReplyPending) {
		t.Fatalf("second Submit() error = %v, want ErrReplyPending", err)
	}
	if conv.Len() != before {
		t.Fatalf("conversation length = %d, want unchanged %d", conv.Len(), before)
	}
	if c.State() != StateAwaitingReply {
		t.Fatalf("State() = %q, want awaitingReply", c.State())
	}

	close(completer.release)
	turn.Wait()
}

func TestTransportFaultAppendsApologyOnce(t *testing.T) {
	completer := &fakeCompleter{err: completion.TransportError("sending request", errors.New("connection refused"))}
	c, conv, _, rec := newTestController(completer, nil, ControllerConfig{})

	turn, err := c.Send(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	reply, replyErr := turn.Wait()
	if replyErr == nil {
		t.Fatal("Wait() error = nil, want completion error")
	}
	if reply.Content != constants.ApologyMessage {
		t.Fatalf("reply = %q, want apology", reply.Content)
	}

	apologies := 0
	for _, msg := range conv.Snapshot() {
		if msg.Content == constants.ApologyMessage {
			apologies++
		}
	}
	if apologies != 1 {
		t.Fatalf("apology messages = %d, want 1", apologies)
	}
	if c.State() != StateIdle {
		t.Fatalf("State() = %q, want idle", c.State())
	}

	notices := rec.Notices()
	if len(notices) != 1 || notices[0].Title != "Error" || notices[0].Variant != notify.VariantDestructive {
		t.Fatalf("notices = %+v, want one destructive Error notice", notices)
	}
}

func TestPanickingCompleterStillSettles(t *testing.T) {
	completer := &fakeCompleter{panicMsg: "boom"}
	c, conv, _, _ := newTestController(completer, nil, ControllerConfig{})

	turn, err := c.Send(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	reply, _ := turn.Wait()
	if reply.Content != constants.ApologyMessage {
		t.Fatalf("reply = %q, want apology", reply.Content)
	}
	if c.State() != StateIdle || conv.Len() != 3 {
		t.Fatalf("State() = %q, Len() = %d, want idle and 3", c.State(), conv.Len())
	}
}

func TestConversationLengthTracksSends(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	c, conv, _, _ := newTestController(completer, nil, ControllerConfig{})

	for i := 0; i < 4; i++ {
		if i == 2 {
			completer.err = completion.ProviderError("quota", nil)
		} else {
			completer.err = nil
		}
		if _, err := c.Send(context.Background(), "msg"); err != nil {
			t.Fatalf("Send(%d) error = %v", i, err)
		}
	}

	if got, want := conv.Len(), 2*4+1; got != want {
		t.Fatalf("conversation length = %d, want %d", got, want)
	}
	snap := conv.Snapshot()
	for i := 1; i < len(snap); i += 2 {
		if snap[i].Role != models.RoleUser || snap[i+1].Role != models.RoleAssistant {
			t.Fatalf("snap[%d..%d] roles = %s, %s, want user then assistant", i, i+1, snap[i].Role, snap[i+1].Role)
		}
	}
}

func TestAttachmentsBecomeMediaRefsOfTheSentMessage(t *testing.T) {
	completer := &fakeCompleter{reply: "Nice pictures"}
	c, conv, store, _ := newTestController(completer, nil, ControllerConfig{})

	result := store.Select(context.Background(), []attachments.FileInput{
		attachments.FromBytes("one.png", "image/png", smallPNG(t)),
		attachments.FromBytes("two.png", "image/png", smallPNG(t)),
	}).Wait()
	if len(result.Staged) != 2 {
		t.Fatalf("staged = %d, want 2", len(result.Staged))
	}

	turn, err := c.Send(context.Background(), "")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	user := turn.UserMessage
	if len(user.MediaRefs) != 2 || user.MediaRefs[0] != result.Staged[0].Locator || user.MediaRefs[1] != result.Staged[1].Locator {
		t.Fatalf("MediaRefs = %v, want staged locators in order", user.MediaRefs)
	}
	if len(store.Staged()) != 0 {
		t.Fatalf("Staged() after send = %d, want 0", len(store.Staged()))
	}
	if len(completer.locators) != 2 {
		t.Fatalf("locators sent = %d, want 2", len(completer.locators))
	}

	refCount := 0
	for _, msg := range conv.Snapshot() {
		refCount += len(msg.MediaRefs)
	}
	if refCount != 2 {
		t.Fatalf("media refs across conversation = %d, want 2", refCount)
	}
}

func TestSubmitRejections(t *testing.T) {
	uploader := &blockingUploader{release: make(chan struct{})}
	c, conv, store, _ := newTestController(&fakeCompleter{reply: "x"}, uploader, ControllerConfig{MaxMessageLength: 5})

	if _, err := c.Submit(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("Submit(blank) error = %v, want ErrEmptyMessage", err)
	}
	if _, err := c.Submit(context.Background(), "too long"); !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("Submit(long) error = %v, want ErrMessageTooLong", err)
	}

	batch := store.Select(context.Background(), []attachments.FileInput{attachments.FromBytes("a.txt", "text/plain", []byte("a"))})
	if _, err := c.Submit(context.Background(), "hi"); !errors.Is(err, ErrUploadsInFlight) {
		t.Fatalf("Submit(uploading) error = %v, want ErrUploadsInFlight", err)
	}
	if conv.Len() != 1 || c.State() != StateIdle {
		t.Fatalf("Len() = %d, State() = %q after rejections, want 1 and idle", conv.Len(), c.State())
	}

	close(uploader.release)
	batch.Wait()

	turn, err := c.Send(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Send() after upload error = %v", err)
	}
	if len(turn.UserMessage.MediaRefs) != 1 {
		t.Fatalf("MediaRefs = %v, want the uploaded file", turn.UserMessage.MediaRefs)
	}
}

func TestSystemPromptIsSentButNotStored(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	c, conv, _, _ := newTestController(completer, nil, ControllerConfig{SystemPrompt: "You are terse."})

	if _, err := c.Send(context.Background(), "Hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if completer.history[0].Role != models.RoleSystem || completer.history[0].Content != "You are terse." {
		t.Fatalf("history[0] = %+v, want system prompt", completer.history[0])
	}
	if len(completer.history) != 3 {
		t.Fatalf("history length = %d, want system + welcome + user", len(completer.history))
	}
	for _, msg := range conv.Snapshot() {
		if msg.Role == models.RoleSystem {
			t.Fatal("system prompt stored in conversation")
		}
	}
}

func TestTurnDoneChannel(t *testing.T) {
	completer := &fakeCompleter{release: make(chan struct{}), reply: "ok"}
	c, _, _, _ := newTestController(completer, nil, ControllerConfig{})

	turn, err := c.Submit(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	select {
	case <-turn.Done():
		t.Fatal("turn done before completion returned")
	default:
	}

	close(completer.release)
	select {
	case <-turn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("turn not done after completion returned")
	}
}
