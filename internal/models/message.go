package models

import "time"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation. MediaRefs holds the resolved
// attachment locators in the order they were staged.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	MediaRefs []string  `json:"mediaRefs,omitempty"`
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if m.MediaRefs != nil {
		m.MediaRefs = append([]string(nil), m.MediaRefs...)
	}
	return m
}
