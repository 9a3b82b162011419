package privmsg

import (
	"context"
	"log/slog"
	"time"

	"github.com/rbaliyan/event/v3/transport"
	"github.com/rbaliyan/privmsg/reminder"
	"github.com/rbaliyan/privmsg/retry"
	"github.com/rbaliyan/privmsg/store"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Default configuration values.
const (
	DefaultReplyPrefix      = "Re: "
	DefaultDraftTitle       = "No title given"
	DefaultSignatureTitle   = "Signature"
	DefaultOutOfOfficeTitle = "Currently I am not available, but I will respond to your message as soon as I am back again"
	DefaultReminderInterval = time.Hour
	DefaultShutdownTimeout  = 30 * time.Second // default graceful shutdown timeout
	MinShutdownTimeout      = 1 * time.Second  // minimum shutdown timeout

	// Default message limits
	DefaultMaxTitleLength    = 255
	DefaultMaxBodySize       = 1024 * 1024 // 1 MB
	DefaultMaxContextLength  = 4096
	DefaultMaxRecipientCount = 100
	DefaultMaxParamsSize     = 64 * 1024 // 64 KB of JSON
	DefaultMaxParamsKeys     = 100

	// Query limits
	DefaultMaxQueryLimit = 100 // max messages per query
	DefaultQueryLimit    = 20  // default messages per query

	// Concurrency limits
	DefaultMaxConcurrentSends = 10 // max concurrent send operations per service

	// Summary titles are cut to this many runes.
	DefaultSummaryTitleLength = 80
)

// BlockedSendPolicy decides what a send does when a recipient blocks the sender.
type BlockedSendPolicy int

const (
	// BlockedSendError fails the whole send with *BlockedError.
	BlockedSendError BlockedSendPolicy = iota
	// BlockedSendNotice skips blocked recipients and reports them in
	// ComposeResult.Blocked.
	BlockedSendNotice
)

func (p BlockedSendPolicy) String() string {
	switch p {
	case BlockedSendError:
		return "error"
	case BlockedSendNotice:
		return "notice"
	}
	return "unknown"
}

// RecipientFilter narrows the possible recipients of userID.
// It runs last in the resolver, after block and grant rules.
type RecipientFilter func(ctx context.Context, userID string, candidates []string) ([]string, error)

// EmailPredicate reports whether recipientID should be emailed about msg.
type EmailPredicate func(ctx context.Context, recipientID string, msg *Message) bool

// options holds service configuration.
type options struct {
	store     store.Store
	directory Directory
	logger    *slog.Logger

	notifiers []Notifier

	// Engine behavior
	replyPrefix       string
	blockedSendPolicy BlockedSendPolicy
	recipientFilter   RecipientFilter
	emailPredicate    EmailPredicate
	sanitizer         Sanitizer
	autoReplyRetry    retry.Config
	notifyRetry       retry.Config

	// Reminder
	reminderInterval time.Duration
	reminderGate     reminder.Gate

	// Message limits
	maxTitleLength    int
	maxBodySize       int
	maxContextLength  int
	maxRecipientCount int
	maxParamsSize     int
	maxParamsKeys     int

	// Query limits
	maxQueryLimit     int
	defaultQueryLimit int

	// Concurrency limits
	maxConcurrentSends int
	sendRate           float64
	sendBurst          int

	// Shutdown
	shutdownTimeout time.Duration

	// OpenTelemetry
	tracingEnabled bool
	metricsEnabled bool
	serviceName    string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// Event handling
	eventErrorsFatal      bool                    // If true, event publishing failures cause operation to fail
	eventTransport        transport.Transport     // Event transport (optional, uses noop if nil)
	redisClient           redis.UniversalClient   // Redis client for event transport (optional, uses noop if nil)
	onEventPublishFailure EventPublishFailureFunc // Callback for event publish failures (always set)
}

// EventPublishFailureFunc is called when an event fails to publish.
// The eventName is the name of the event (e.g., "MessageSent"), and err is the publish error.
type EventPublishFailureFunc func(eventName string, err error)

// safeEventPublishFailure calls the event failure callback with panic recovery.
// If the callback panics, the panic is logged and suppressed to prevent cascading failures.
func (o *options) safeEventPublishFailure(eventName string, err error) {
	if o.onEventPublishFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in event publish failure handler",
				"event", eventName,
				"original_error", err,
				"panic", r,
			)
		}
	}()
	o.onEventPublishFailure(eventName, err)
}

// newOptions creates options with defaults and applies provided options.
func newOptions(opts ...Option) *options {
	o := &options{
		logger:           slog.Default(),
		replyPrefix:      DefaultReplyPrefix,
		reminderInterval: DefaultReminderInterval,
		autoReplyRetry: retry.Config{
			MaxRetries:     2,
			InitialBackoff: 50 * time.Millisecond,
			MaxBackoff:     time.Second,
			IsRetryable:    IsRetryableError,
		},
		notifyRetry: retry.Config{
			MaxRetries:     2,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		},
		// Message limits defaults
		maxTitleLength:    DefaultMaxTitleLength,
		maxBodySize:       DefaultMaxBodySize,
		maxContextLength:  DefaultMaxContextLength,
		maxRecipientCount: DefaultMaxRecipientCount,
		maxParamsSize:     DefaultMaxParamsSize,
		maxParamsKeys:     DefaultMaxParamsKeys,
		// Query limits defaults
		maxQueryLimit:     DefaultMaxQueryLimit,
		defaultQueryLimit: DefaultQueryLimit,
		// Concurrency limits defaults
		maxConcurrentSends: DefaultMaxConcurrentSends,
		// Shutdown defaults
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	// Validate query limits consistency
	if o.defaultQueryLimit > o.maxQueryLimit {
		o.defaultQueryLimit = o.maxQueryLimit
	}

	if o.sanitizer == nil {
		o.sanitizer = NewUGCSanitizer()
	}
	if o.reminderGate == nil {
		o.reminderGate = reminder.NewMemory()
	}

	// Ensure event failure callback is always set
	if o.onEventPublishFailure == nil {
		o.onEventPublishFailure = func(eventName string, err error) {
			o.logger.Error("failed to publish event", "event", eventName, "error", err)
		}
	}

	return o
}

// Option configures a privmsg service.
type Option func(*options)

// --- Core Options ---

// WithStore sets the storage backend (required).
func WithStore(s store.Store) Option {
	return func(o *options) {
		if s != nil {
			o.store = s
		}
	}
}

// WithDirectory sets the user directory (required).
// It is the source of truth for which user IDs exist.
func WithDirectory(d Directory) Option {
	return func(o *options) {
		if d != nil {
			o.directory = d
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

// --- Engine Options ---

// WithReplyPrefix sets the prefix prepended once to reply titles.
// Default is "Re: ".
func WithReplyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.replyPrefix = prefix
		}
	}
}

// WithBlockedSendPolicy sets what a send does when a recipient blocks the sender.
// Default is BlockedSendError.
func WithBlockedSendPolicy(p BlockedSendPolicy) Option {
	return func(o *options) {
		if p == BlockedSendError || p == BlockedSendNotice {
			o.blockedSendPolicy = p
		}
	}
}

// WithRecipientFilter installs a hook that narrows possible recipients
// after block and grant rules were applied.
func WithRecipientFilter(fn RecipientFilter) Option {
	return func(o *options) {
		if fn != nil {
			o.recipientFilter = fn
		}
	}
}

// WithEmailPredicate decides which deliveries are handed to notifiers.
// By default every delivery is.
func WithEmailPredicate(fn EmailPredicate) Option {
	return func(o *options) {
		if fn != nil {
			o.emailPredicate = fn
		}
	}
}

// WithNotifier registers a notifier invoked after each committed delivery.
// Multiple notifiers can be registered by calling this option multiple times.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifiers = append(o.notifiers, n)
		}
	}
}

// WithSanitizer replaces the markup sanitizer applied to titles and bodies.
// Default is the bluemonday UGC policy.
func WithSanitizer(s Sanitizer) Option {
	return func(o *options) {
		if s != nil {
			o.sanitizer = s
		}
	}
}

// WithAutoReplyRetry sets the retry policy for out-of-office replies.
// A nil IsRetryable keeps the package classification.
func WithAutoReplyRetry(cfg retry.Config) Option {
	return func(o *options) {
		if cfg.IsRetryable == nil {
			cfg.IsRetryable = IsRetryableError
		}
		o.autoReplyRetry = cfg
	}
}

// WithNotifyRetry sets the retry policy for notifier dispatch.
// A nil IsRetryable uses retry.StoreIsRetryable.
func WithNotifyRetry(cfg retry.Config) Option {
	return func(o *options) {
		o.notifyRetry = cfg
	}
}

// --- Reminder Options ---

// WithReminderInterval sets the minimum time between two unread reminders
// for the same user. Default is 1 hour.
func WithReminderInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.reminderInterval = d
		}
	}
}

// WithReminderGate sets where the last reminded unread count is kept.
// Default is an in-process gate; use reminder.NewRedis for a shared one.
func WithReminderGate(g reminder.Gate) Option {
	return func(o *options) {
		if g != nil {
			o.reminderGate = g
		}
	}
}

// --- OTel Options ---

// WithTracing enables or disables OpenTelemetry tracing.
// When enabled, spans are created for all operations.
// Default is disabled.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables or disables OpenTelemetry metrics.
// Default is disabled.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithOTel enables both OpenTelemetry tracing and metrics.
func WithOTel(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
		o.metricsEnabled = enabled
	}
}

// WithServiceName sets the service name for telemetry and the event bus.
// Default is "privmsg".
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithTracerProvider sets a custom OpenTelemetry tracer provider.
// Default uses the global tracer provider from otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets a custom OpenTelemetry meter provider.
// Default uses the global meter provider from otel.GetMeterProvider().
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// --- Message Limit Options ---

// WithMaxTitleLength sets the maximum title length in characters.
// Default is 255.
func WithMaxTitleLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTitleLength = n
		}
	}
}

// WithMaxBodySize sets the maximum body size in bytes.
// Default is 1 MB.
func WithMaxBodySize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBodySize = n
		}
	}
}

// WithMaxContextLength sets the maximum length of the opaque context string.
// Default is 4096.
func WithMaxContextLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxContextLength = n
		}
	}
}

// WithMaxRecipients sets the maximum number of recipients per send.
// Default is 100.
func WithMaxRecipients(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRecipientCount = n
		}
	}
}

// WithMaxParamsSize sets the maximum JSON size of message params in bytes.
// Default is 64 KB.
func WithMaxParamsSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxParamsSize = n
		}
	}
}

// WithMaxParamsKeys sets the maximum number of top-level params keys.
// Default is 100.
func WithMaxParamsKeys(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxParamsKeys = n
		}
	}
}

// --- Query Limit Options ---

// WithMaxQueryLimit sets the maximum number of messages per query.
// Any query requesting more than this limit will be capped.
// Default is 100.
func WithMaxQueryLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxQueryLimit = n
		}
	}
}

// WithDefaultQueryLimit sets the default number of messages per query
// when no limit is specified. If this exceeds MaxQueryLimit, it is
// automatically capped to MaxQueryLimit.
// Default is 20.
func WithDefaultQueryLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.defaultQueryLimit = n
		}
	}
}

// --- Concurrency Options ---

// WithMaxConcurrentSends sets the maximum number of concurrent send operations.
// Default is 10.
func WithMaxConcurrentSends(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrentSends = n
		}
	}
}

// WithSendRateLimit limits each sender to perSecond sends with the given
// burst. Sends over the limit fail with ErrRateLimited. Default is no limit.
func WithSendRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		if perSecond > 0 && burst > 0 {
			o.sendRate = perSecond
			o.sendBurst = burst
		}
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight operations
// during graceful shutdown.
// Default is 30 seconds. Minimum is 1 second.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= MinShutdownTimeout {
			o.shutdownTimeout = d
		}
	}
}

// --- Event Options ---

// WithEventErrorsFatal configures whether event publishing failures should
// cause the operation to fail. By default, event failures are logged but
// the operation succeeds (the message is still sent).
func WithEventErrorsFatal(fatal bool) Option {
	return func(o *options) {
		o.eventErrorsFatal = fatal
	}
}

// WithEventTransport sets the event transport for publishing and subscribing.
// If not provided, a noop transport is used (events are silently dropped).
func WithEventTransport(t transport.Transport) Option {
	return func(o *options) {
		if t != nil {
			o.eventTransport = t
		}
	}
}

// WithRedisClient sets a Redis client for the event transport.
// When provided, events are published to Redis Streams.
//
// Compatible with *redis.Client, *redis.ClusterClient, and redis.UniversalClient.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		if client != nil {
			o.redisClient = client
		}
	}
}

// WithEventPublishFailureHandler sets a callback for event publishing failures.
// By default, failures are logged using the configured logger.
func WithEventPublishFailureHandler(fn EventPublishFailureFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.onEventPublishFailure = fn
		}
	}
}

// getLimits returns the configured message limits.
func (o *options) getLimits() MessageLimits {
	return MessageLimits{
		MaxTitleLength:    o.maxTitleLength,
		MaxBodySize:       o.maxBodySize,
		MaxContextLength:  o.maxContextLength,
		MaxRecipientCount: o.maxRecipientCount,
		MaxParamsSize:     o.maxParamsSize,
		MaxParamsKeys:     o.maxParamsKeys,
	}
}
