package completion

import (
	"context"
	"errors"
	"testing"

	"assistant/internal/mediaurl"
	"assistant/internal/models"
)

type fakeBackend struct {
	reply string
	err   error
	got   *Request
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Generate(_ context.Context, req *Request) (string, error) {
	f.got = req
	return f.reply, f.err
}

func msg(role models.Role, content string) models.Message {
	return models.Message{Role: role, Content: content}
}

func TestBuildRequestShapesHistory(t *testing.T) {
	history := []models.Message{
		msg(models.RoleSystem, "Be brief."),
		msg(models.RoleAssistant, "Hello! How can I help you today?"),
		msg(models.RoleUser, "Hi"),
		msg(models.RoleUser, "Are you there?"),
		msg(models.RoleAssistant, ""),
		msg(models.RoleAssistant, "Yes."),
		msg(models.RoleUser, "Describe this"),
	}

	req := BuildRequest(history, nil, GenerationConfig{Temperature: 0.7})

	if req.SystemInstruction != "Be brief." {
		t.Fatalf("SystemInstruction = %q, want Be brief.", req.SystemInstruction)
	}
	if len(req.Turns) != 3 {
		t.Fatalf("turns = %d, want 3: %+v", len(req.Turns), req.Turns)
	}
	if req.Turns[0].Role != RoleUser || len(req.Turns[0].Parts) != 2 {
		t.Fatalf("turn[0] = %+v, want merged user turn with 2 parts", req.Turns[0])
	}
	if req.Turns[1].Role != RoleModel || req.Turns[1].Parts[0].Text != "Yes." {
		t.Fatalf("turn[1] = %+v, want model turn Yes.", req.Turns[1])
	}
	if req.Turns[2].Role != RoleUser || req.Turns[2].Parts[0].Text != "Describe this" {
		t.Fatalf("turn[2] = %+v", req.Turns[2])
	}
	if req.Config.Temperature != 0.7 {
		t.Fatalf("Config.Temperature = %v, want 0.7", req.Config.Temperature)
	}
}

func TestBuildRequestAttachesInlineDataToFinalUserTurn(t *testing.T) {
	inline := []InlineData{{MimeType: "image/png", Data: []byte{1}}, {MimeType: "application/pdf", Data: []byte{2}}}

	req := BuildRequest([]models.Message{msg(models.RoleUser, "look")}, inline, GenerationConfig{})
	parts := req.Turns[0].Parts
	if len(parts) != 3 || parts[1].Inline.MimeType != "image/png" || parts[2].Inline.MimeType != "application/pdf" {
		t.Fatalf("parts = %+v, want text then two inline parts in order", parts)
	}

	history := []models.Message{msg(models.RoleUser, "hi"), msg(models.RoleAssistant, "hello"), msg(models.RoleUser, "")}
	req = BuildRequest(history, inline[:1], GenerationConfig{})
	if len(req.Turns) != 3 {
		t.Fatalf("turns = %d, want 3 for attachment-only message", len(req.Turns))
	}
	last := req.Turns[2]
	if last.Role != RoleUser || len(last.Parts) != 1 || last.Parts[0].Inline == nil {
		t.Fatalf("last turn = %+v, want user turn with only inline data", last)
	}
}

func TestCompleteReturnsReply(t *testing.T) {
	backend := &fakeBackend{reply: "Hi there"}
	gw := NewGateway(backend, NewResolver(nil, "", 0, 0), GenerationConfig{TopK: 40})

	reply, err := gw.Complete(context.Background(), []models.Message{msg(models.RoleUser, "Hello")}, []string{
		mediaurl.EncodeData("image/png", []byte{0x89}),
		"data:broken",
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != "Hi there" {
		t.Fatalf("Complete() = %q, want Hi there", reply)
	}
	if got := len(backend.got.Turns[0].Parts); got != 2 {
		t.Fatalf("parts sent = %d, want text plus one resolved attachment", got)
	}
	if backend.got.Config.TopK != 40 {
		t.Fatalf("Config.TopK = %d, want 40", backend.got.Config.TopK)
	}
}

func TestCompleteNormalizesFailures(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeBackend
		want    Kind
	}{
		{name: "blank_reply", backend: &fakeBackend{reply: "  \n"}, want: KindEmpty},
		{name: "provider", backend: &fakeBackend{err: ProviderError("API key not valid", nil)}, want: KindProvider},
		{name: "untyped", backend: &fakeBackend{err: errors.New("connection reset")}, want: KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := NewGateway(tt.backend, nil, GenerationConfig{})
			_, err := gw.Complete(context.Background(), []models.Message{msg(models.RoleUser, "x")}, nil)

			var ce *Error
			if !errors.As(err, &ce) {
				t.Fatalf("Complete() error = %v, want *Error", err)
			}
			if ce.Kind != tt.want {
				t.Fatalf("Kind = %v, want %v", ce.Kind, tt.want)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: ProviderError("quota exceeded", nil), want: "The AI service returned an error: quota exceeded"},
		{err: EmptyError("finish reason SAFETY"), want: "The AI service returned no usable reply: finish reason SAFETY"},
		{err: TransportError("request failed", context.DeadlineExceeded), want: "The AI service did not respond in time."},
		{err: errors.New("dial tcp: refused"), want: "Could not reach the AI service."},
		{err: nil, want: ""},
	}
	for _, tt := range tests {
		if got := Describe(tt.err); got != tt.want {
			t.Fatalf("Describe(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
