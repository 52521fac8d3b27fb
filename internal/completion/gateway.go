package completion

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"assistant/internal/metrics"
	"assistant/internal/models"
)

// Gateway turns a conversation history plus attachment locators into one
// provider call and normalizes the outcome.
type Gateway struct {
	backend  Backend
	resolver *Resolver
	config   GenerationConfig
}

func NewGateway(backend Backend, resolver *Resolver, config GenerationConfig) *Gateway {
	return &Gateway{
		backend:  backend,
		resolver: resolver,
		config:   config,
	}
}

// Complete returns the reply text or an *Error. Locators that cannot be
// dereferenced are skipped and do not fail the call.
func (g *Gateway) Complete(ctx context.Context, history []models.Message, locators []string) (string, error) {
	var inline []InlineData
	if len(locators) > 0 && g.resolver != nil {
		inline = g.resolver.ResolveAll(ctx, locators)
	}

	req := BuildRequest(history, inline, g.config)

	start := time.Now()
	reply, err := g.backend.Generate(ctx, req)
	metrics.CompletionDuration.WithLabelValues(g.backend.Name()).Observe(time.Since(start).Seconds())

	if err == nil && strings.TrimSpace(reply) == "" {
		err = EmptyError("reply contained no text")
	}
	if err != nil {
		ce := AsError(err)
		metrics.CompletionsTotal.WithLabelValues(outcomeLabel(ce.Kind)).Inc()
		slog.Error("completion failed", "component", "completion", "backend", g.backend.Name(), "kind", ce.Kind.String(), "error", err)
		return "", ce
	}

	metrics.CompletionsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	return reply, nil
}

// BuildRequest shapes history for the provider. System messages form the
// system instruction; user and assistant messages become alternating turns
// with consecutive same-role messages merged and empty ones dropped. Inline
// attachments are added to the final user turn.
func BuildRequest(history []models.Message, inline []InlineData, config GenerationConfig) *Request {
	req := &Request{Config: config}

	var system []string
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}

		var role Role
		switch msg.Role {
		case models.RoleSystem:
			system = append(system, content)
			continue
		case models.RoleUser:
			role = RoleUser
		case models.RoleAssistant:
			role = RoleModel
		default:
			continue
		}

		if len(req.Turns) == 0 && role == RoleModel {
			continue
		}

		if n := len(req.Turns); n > 0 && req.Turns[n-1].Role == role {
			req.Turns[n-1].Parts = append(req.Turns[n-1].Parts, Part{Text: content})
			continue
		}
		req.Turns = append(req.Turns, Turn{Role: role, Parts: []Part{{Text: content}}})
	}
	req.SystemInstruction = strings.Join(system, "\n\n")

	if len(inline) == 0 {
		return req
	}

	// An attachment-only message has no text turn of its own.
	if n := len(req.Turns); n == 0 || req.Turns[n-1].Role != RoleUser {
		req.Turns = append(req.Turns, Turn{Role: RoleUser})
	}
	target := len(req.Turns) - 1
	for i := range inline {
		data := inline[i]
		req.Turns[target].Parts = append(req.Turns[target].Parts, Part{Inline: &data})
	}

	return req
}

func outcomeLabel(kind Kind) string {
	switch kind {
	case KindProvider:
		return metrics.OutcomeProvider
	case KindEmpty:
		return metrics.OutcomeEmpty
	default:
		return metrics.OutcomeTransport
	}
}
