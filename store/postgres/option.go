package postgres

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultTable        = "messages"
	DefaultIgnoreTable  = "message_ignores"
	DefaultContactTable = "message_contacts"
	DefaultTimeout      = 10 * time.Second
)

// options holds PostgreSQL store configuration.
type options struct {
	table        string
	ignoreTable  string
	contactTable string
	timeout      time.Duration
	logger       *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		table:        DefaultTable,
		ignoreTable:  DefaultIgnoreTable,
		contactTable: DefaultContactTable,
		timeout:      DefaultTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a PostgreSQL store.
type Option func(*options)

// WithTable sets the messages table name.
func WithTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.table = name
		}
	}
}

// WithIgnoreTable sets the ignore (block) edge table name.
func WithIgnoreTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.ignoreTable = name
		}
	}
}

// WithContactTable sets the contact grant table name.
func WithContactTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.contactTable = name
		}
	}
}

// WithTimeout sets the operation timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
