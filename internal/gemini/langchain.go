package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"assistant/internal/completion"
)

// LangchainBackend sends completion requests through langchaingo's googleai
// model.
type LangchainBackend struct {
	llm llms.Model
}

func NewLangchainBackend(ctx context.Context, cfg Config, maxTokens int) (*LangchainBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []googleai.Option{
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultModel(cfg.Model),
	}
	if maxTokens > 0 {
		opts = append(opts, googleai.WithDefaultMaxTokens(maxTokens))
	}

	llm, err := googleai.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing googleai model: %w", err)
	}

	return &LangchainBackend{llm: llm}, nil
}

func (b *LangchainBackend) Name() string {
	return "gemini_langchain"
}

func (b *LangchainBackend) Generate(ctx context.Context, req *completion.Request) (string, error) {
	resp, err := b.llm.GenerateContent(ctx, toMessages(req),
		llms.WithTemperature(req.Config.Temperature),
		llms.WithTopK(req.Config.TopK),
		llms.WithTopP(req.Config.TopP),
		llms.WithMaxTokens(req.Config.MaxOutputTokens),
	)
	if err != nil {
		return "", classifyLangchainError(err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return "", completion.EmptyError("no candidates")
	}

	choice := resp.Choices[0]
	if strings.TrimSpace(choice.Content) == "" {
		if choice.StopReason != "" {
			return "", completion.EmptyError("finish reason " + choice.StopReason)
		}
		return "", completion.EmptyError("candidate has no text")
	}
	return choice.Content, nil
}

func toMessages(req *completion.Request) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.Turns)+1)

	if req.SystemInstruction != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemInstruction))
	}

	for _, turn := range req.Turns {
		role := llms.ChatMessageTypeHuman
		if turn.Role == completion.RoleModel {
			role = llms.ChatMessageTypeAI
		}

		msg := llms.MessageContent{Role: role}
		for _, p := range turn.Parts {
			if p.Inline != nil {
				msg.Parts = append(msg.Parts, llms.BinaryPart(p.Inline.MimeType, p.Inline.Data))
				continue
			}
			msg.Parts = append(msg.Parts, llms.TextPart(p.Text))
		}
		messages = append(messages, msg)
	}

	return messages
}

func classifyLangchainError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.As(err, &netErr):
		return completion.TransportError("sending request", err)
	case errors.Is(err, googleai.ErrNoContentInResponse):
		return completion.EmptyError(err.Error())
	default:
		return completion.ProviderError(err.Error(), err)
	}
}
