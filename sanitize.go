package privmsg

import "github.com/microcosm-cc/bluemonday"

// Sanitizer strips markup injection from user supplied text.
// Titles, bodies and contexts pass through it before they are stored.
type Sanitizer interface {
	Sanitize(s string) string
}

// SanitizerFunc adapts a function to the Sanitizer interface.
type SanitizerFunc func(string) string

// Sanitize calls f(s).
func (f SanitizerFunc) Sanitize(s string) string {
	return f(s)
}

// NewUGCSanitizer returns the default sanitizer. It keeps formatting markup
// that is safe in user generated content and drops scripts, styles and
// event handlers.
func NewUGCSanitizer() Sanitizer {
	return bluemonday.UGCPolicy()
}

// NewStrictSanitizer returns a sanitizer that removes all markup.
func NewStrictSanitizer() Sanitizer {
	return bluemonday.StrictPolicy()
}

// sanitizeInput runs s over the free-text fields of in.
func sanitizeInput(s Sanitizer, in MessageInput) MessageInput {
	in.Title = s.Sanitize(in.Title)
	in.Body = s.Sanitize(in.Body)
	in.Context = s.Sanitize(in.Context)
	return in
}

var _ Sanitizer = (*bluemonday.Policy)(nil)
