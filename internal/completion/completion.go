package completion

import (
	"context"
	"errors"
	"fmt"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type InlineData struct {
	MimeType string
	Data     []byte
}

// Part is either text or inline binary data.
type Part struct {
	Text   string
	Inline *InlineData
}

type Turn struct {
	Role  Role
	Parts []Part
}

type GenerationConfig struct {
	Temperature     float64
	TopK            int
	TopP            float64
	MaxOutputTokens int
}

// Request is the provider-neutral shape of one completion call.
type Request struct {
	SystemInstruction string
	Turns             []Turn
	Config            GenerationConfig
}

// Backend performs a single completion call. Implementations return
// *Error for every failure.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req *Request) (string, error)
}

type Kind int

const (
	KindProvider Kind = iota + 1
	KindEmpty
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindProvider:
		return "provider"
	case KindEmpty:
		return "empty"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is the failure side of a completion call.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("completion %s error: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("completion %s error: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func ProviderError(detail string, err error) *Error {
	return &Error{Kind: KindProvider, Detail: detail, Err: err}
}

func EmptyError(detail string) *Error {
	return &Error{Kind: KindEmpty, Detail: detail}
}

func TransportError(detail string, err error) *Error {
	return &Error{Kind: KindTransport, Detail: detail, Err: err}
}

// AsError converts any error into *Error. Errors that are not already typed
// are treated as transport failures.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return TransportError("request failed", err)
}

// Describe renders err as a short diagnostic for the notification channel.
func Describe(err error) string {
	ce := AsError(err)
	if ce == nil {
		return ""
	}
	switch ce.Kind {
	case KindProvider:
		return "The AI service returned an error: " + ce.Detail
	case KindEmpty:
		return "The AI service returned no usable reply: " + ce.Detail
	case KindTransport:
		if errors.Is(ce.Err, context.DeadlineExceeded) {
			return "The AI service did not respond in time."
		}
		return "Could not reach the AI service."
	default:
		return ce.Error()
	}
}
