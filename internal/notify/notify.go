package notify

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notice is a transient user-visible notification. It never becomes part of
// the conversation.
type Notice struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Variant     Variant `json:"variant"`
}

type Notifier interface {
	Notify(Notice)
}

type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

var policy = bluemonday.StrictPolicy()

// sanitize strips markup from user-controlled text such as filenames. The
// strict policy escapes what it keeps, so the result is unescaped again for
// plain-text clients.
func sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(s)))
}

func Info(title, description string) Notice {
	return Notice{Title: sanitize(title), Description: sanitize(description), Variant: VariantDefault}
}

func Error(title, description string) Notice {
	return Notice{Title: sanitize(title), Description: sanitize(description), Variant: VariantDestructive}
}

// Recorder collects notices in order. The zero value is ready to use.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Multi fans a notice out to every non-nil notifier.
func Multi(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(n Notice) {
		for _, notifier := range notifiers {
			if notifier != nil {
				notifier.Notify(n)
			}
		}
	})
}

// Discard drops every notice.
var Discard Notifier = NotifierFunc(func(Notice) {})
