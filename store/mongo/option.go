package mongo

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultDatabase          = "privmsg"
	DefaultCollection        = "messages"
	DefaultIgnoreCollection  = "message_ignores"
	DefaultContactCollection = "message_contacts"
	DefaultCounterCollection = "counters"
	DefaultTimeout           = 10 * time.Second
)

// options holds MongoDB store configuration.
type options struct {
	database          string
	collection        string
	ignoreCollection  string
	contactCollection string
	counterCollection string
	timeout           time.Duration
	logger            *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		database:          DefaultDatabase,
		collection:        DefaultCollection,
		ignoreCollection:  DefaultIgnoreCollection,
		contactCollection: DefaultContactCollection,
		counterCollection: DefaultCounterCollection,
		timeout:           DefaultTimeout,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a MongoDB store.
type Option func(*options)

// WithDatabase sets the database name.
func WithDatabase(name string) Option {
	return func(o *options) {
		if name != "" {
			o.database = name
		}
	}
}

// WithCollection sets the messages collection name.
func WithCollection(name string) Option {
	return func(o *options) {
		if name != "" {
			o.collection = name
		}
	}
}

// WithIgnoreCollection sets the ignore edge collection name.
func WithIgnoreCollection(name string) Option {
	return func(o *options) {
		if name != "" {
			o.ignoreCollection = name
		}
	}
}

// WithContactCollection sets the contact grant collection name.
func WithContactCollection(name string) Option {
	return func(o *options) {
		if name != "" {
			o.contactCollection = name
		}
	}
}

// WithCounterCollection sets the collection holding the message id sequence.
func WithCounterCollection(name string) Option {
	return func(o *options) {
		if name != "" {
			o.counterCollection = name
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
