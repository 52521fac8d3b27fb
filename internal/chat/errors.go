package chat

import (
	"errors"

	"assistant/internal/constants"
)

// ErrorCode maps a Submit rejection to its transport error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrReplyPending):
		return constants.ErrCodeReplyPending
	case errors.Is(err, ErrUploadsInFlight):
		return constants.ErrCodeUploadsInFlight
	case errors.Is(err, ErrEmptyMessage):
		return constants.ErrCodeEmptyMessage
	case errors.Is(err, ErrMessageTooLong):
		return constants.ErrCodeMessageTooLong
	default:
		return constants.ErrCodeInternal
	}
}
