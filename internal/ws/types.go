package ws

import (
	"assistant/internal/chat"
	"assistant/internal/constants"
	"assistant/internal/models"
	"assistant/internal/notify"
)

// Operation codes for WebSocket messages
type OpCode int

// ProtocolVersion is the exact server/client WS protocol version.
// Bump this only for breaking wire-contract changes.
const ProtocolVersion = 1

const (
	// DISPATCH - Events and commands with type field
	OpDispatch OpCode = 0

	// Lifecycle ops (Server -> Client)
	OpHello          OpCode = 1 // Sent on connection
	OpReady          OpCode = 2 // Sent after subscribing, contains the session snapshot
	OpInvalidSession OpCode = 3 // Session deleted or expired
)

// Event types (Server -> Client via DISPATCH)
const (
	EventMessageCreate     = "MESSAGE_CREATE"
	EventMessageAck        = "MESSAGE_ACK"
	EventTypingStart       = "TYPING_START"
	EventTypingStop        = "TYPING_STOP"
	EventNotification      = "NOTIFICATION"
	EventAttachmentsUpdate = "ATTACHMENTS_UPDATE"
	EventError             = "ERROR"
)

// Command types (Client -> Server via DISPATCH)
const (
	CmdMessageSend      = "MESSAGE_SEND"
	CmdAttachmentRemove = "ATTACHMENT_REMOVE"
	CmdAttachmentsClear = "ATTACHMENTS_CLEAR"
)

// Error codes sent in EventError payloads.
const (
	ErrCodeRateLimited    = constants.ErrCodeRateLimited
	ErrCodeInvalidRequest = constants.ErrCodeInvalidRequest
	ErrCodeNotFound       = constants.ErrCodeNotFound
)

type WSMessage struct {
	Op   OpCode      `json:"op"`
	Type string      `json:"t,omitempty"` // Event/command type (only for DISPATCH)
	Data interface{} `json:"d,omitempty"`
	Seq  *int64      `json:"s,omitempty"`
}

// Server -> Client payloads

type HelloPayload struct {
	HeartbeatIntervalMS int64 `json:"heartbeat_interval_ms"`
}

type ReadyPayload struct {
	ProtocolVersion int                  `json:"protocol_version"`
	SessionID       string               `json:"session_id"`
	ConnectionID    string               `json:"connection_id"`
	State           chat.State           `json:"state"`
	Messages        []models.MessageView `json:"messages"`
	Attachments     []models.Attachment  `json:"attachments"`
	Uploading       bool                 `json:"uploading"`
}

// InvalidSessionPayload sent when the session is gone
type InvalidSessionPayload struct {
	Resumable bool `json:"resumable"`
}

// MessageCreatePayload is sent for every message appended to the conversation.
type MessageCreatePayload = models.MessageView

type MessageAckPayload struct {
	ID    string `json:"id"`
	Nonce string `json:"nonce,omitempty"`
}

type TypingPayload struct {
	SessionID string `json:"session_id"`
}

type NotificationPayload = notify.Notice

type AttachmentsUpdatePayload struct {
	Attachments []models.Attachment `json:"attachments"`
}

// ErrorPayload sent when the server rejects a client action
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Nonce   string `json:"nonce,omitempty"`
}

// Client -> Server payloads (via DISPATCH)

type MessageSendPayload struct {
	Content string `json:"content"`
	Nonce   string `json:"nonce,omitempty"`
}

type AttachmentRemovePayload struct {
	Index int `json:"index"`
}
