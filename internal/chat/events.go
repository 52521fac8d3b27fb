package chat

import (
	"assistant/internal/models"
	"assistant/internal/notify"
)

// Events receives everything a session's clients should see.
type Events interface {
	MessageCreated(sessionID string, msg models.Message)
	TypingChanged(sessionID string, typing bool)
	Notice(sessionID string, n notify.Notice)
	AttachmentsChanged(sessionID string, staged []models.Attachment)
	SessionClosed(sessionID string)
}

type NopEvents struct{}

func (NopEvents) MessageCreated(string, models.Message)          {}
func (NopEvents) TypingChanged(string, bool)                     {}
func (NopEvents) Notice(string, notify.Notice)                   {}
func (NopEvents) AttachmentsChanged(string, []models.Attachment) {}
func (NopEvents) SessionClosed(string)                           {}
