package models

import (
	"time"

	"assistant/internal/mediaurl"
)

type MediaView struct {
	URL  string        `json:"url"`
	Kind mediaurl.Kind `json:"kind"`
}

// MessageView is the client-facing form of a Message.
type MessageView struct {
	ID        string      `json:"id"`
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	Timestamp string      `json:"timestamp"`
	Media     []MediaView `json:"media,omitempty"`
}

func NewMessageView(m Message) MessageView {
	view := MessageView{
		ID:        m.ID,
		Role:      m.Role,
		Content:   m.Content,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	for _, ref := range m.MediaRefs {
		view.Media = append(view.Media, MediaView{URL: ref, Kind: mediaurl.Classify(ref)})
	}
	return view
}

func NewMessageViews(msgs []Message) []MessageView {
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, NewMessageView(m))
	}
	return views
}
