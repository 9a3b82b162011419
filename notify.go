package privmsg

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rbaliyan/privmsg/retry"
)

// Notification describes a delivered message handed to notifiers.
type Notification struct {
	// Message is the delivered record. Notifiers must not modify it.
	Message *Message
	// OriginHash is the message this one answers, if any.
	OriginHash string
	// AutoReply is true for out-of-office replies.
	AutoReply bool
}

// Notifier is told about deliveries after they committed, typically to send
// an email to the recipient. Notification is best effort: a failing notifier
// is retried for transient errors, then logged. It never fails the send.
//
// Init and Close follow the service lifecycle.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string
	// Init initializes the notifier. Called when the service connects.
	Init(ctx context.Context) error
	// Close releases notifier resources. Called when the service closes.
	Close(ctx context.Context) error
	// Notify handles one delivered message.
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc returns a Notifier without lifecycle hooks that calls fn.
func NotifierFunc(name string, fn func(ctx context.Context, n Notification) error) Notifier {
	return &funcNotifier{name: name, fn: fn}
}

type funcNotifier struct {
	name string
	fn   func(ctx context.Context, n Notification) error
}

func (f *funcNotifier) Name() string                { return f.name }
func (f *funcNotifier) Init(context.Context) error  { return nil }
func (f *funcNotifier) Close(context.Context) error { return nil }

func (f *funcNotifier) Notify(ctx context.Context, n Notification) error {
	return f.fn(ctx, n)
}

// notifierRegistry holds registered notifiers.
type notifierRegistry struct {
	all    []Notifier
	logger *slog.Logger
}

// newNotifierRegistry creates a new notifier registry.
func newNotifierRegistry(logger *slog.Logger, notifiers []Notifier) *notifierRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &notifierRegistry{all: notifiers, logger: logger}
}

// initAll initializes all notifiers.
// On failure, already-initialized notifiers are closed in reverse order.
func (r *notifierRegistry) initAll(ctx context.Context) error {
	for i, n := range r.all {
		if err := n.Init(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if closeErr := r.all[j].Close(ctx); closeErr != nil {
					r.logger.Error("failed to close notifier during init rollback",
						"notifier", r.all[j].Name(), "error", closeErr)
				}
			}
			return &NotifierError{Notifier: n.Name(), Op: "init", Err: err}
		}
	}
	return nil
}

// closeAll closes all notifiers in reverse order.
func (r *notifierRegistry) closeAll(ctx context.Context) error {
	var errs []error
	for i := len(r.all) - 1; i >= 0; i-- {
		if err := r.all[i].Close(ctx); err != nil {
			errs = append(errs, &NotifierError{Notifier: r.all[i].Name(), Op: "close", Err: err})
		}
	}
	return errors.Join(errs...)
}

// dispatch hands n to every notifier, retrying transient failures.
// Failures are logged and dropped.
func (r *notifierRegistry) dispatch(ctx context.Context, cfg retry.Config, n Notification) {
	for _, nf := range r.all {
		err := retry.Do(ctx, cfg, func(ctx context.Context) error {
			return nf.Notify(ctx, n)
		})
		if err != nil {
			r.logger.Warn("notifier failed",
				"error", &NotifierError{Notifier: nf.Name(), Op: "notify", Err: err},
				"hash", n.Message.Hash,
				"recipient_id", n.Message.RecipientID,
			)
		}
	}
}

// NotifierError represents an error from a notifier.
type NotifierError struct {
	Notifier string
	Op       string
	Err      error
}

func (e *NotifierError) Error() string {
	return "privmsg: notifier " + e.Notifier + " " + e.Op + ": " + e.Err.Error()
}

func (e *NotifierError) Unwrap() error {
	return e.Err
}
