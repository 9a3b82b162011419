package privmsg

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/rbaliyan/privmsg/reminder"
	"github.com/rbaliyan/privmsg/retry"
)

func TestNewOptions(t *testing.T) {
	t.Run("returns defaults without options", func(t *testing.T) {
		opts := newOptions()

		if opts.replyPrefix != DefaultReplyPrefix {
			t.Errorf("expected replyPrefix %q, got %q", DefaultReplyPrefix, opts.replyPrefix)
		}
		if opts.blockedSendPolicy != BlockedSendError {
			t.Errorf("expected BlockedSendError, got %v", opts.blockedSendPolicy)
		}
		if opts.reminderInterval != DefaultReminderInterval {
			t.Errorf("expected reminderInterval %v, got %v", DefaultReminderInterval, opts.reminderInterval)
		}
		if opts.maxTitleLength != DefaultMaxTitleLength {
			t.Errorf("expected maxTitleLength %v, got %v", DefaultMaxTitleLength, opts.maxTitleLength)
		}
		if opts.maxBodySize != DefaultMaxBodySize {
			t.Errorf("expected maxBodySize %v, got %v", DefaultMaxBodySize, opts.maxBodySize)
		}
		if opts.maxRecipientCount != DefaultMaxRecipientCount {
			t.Errorf("expected maxRecipientCount %v, got %v", DefaultMaxRecipientCount, opts.maxRecipientCount)
		}
		if opts.maxQueryLimit != DefaultMaxQueryLimit {
			t.Errorf("expected maxQueryLimit %v, got %v", DefaultMaxQueryLimit, opts.maxQueryLimit)
		}
		if opts.defaultQueryLimit != DefaultQueryLimit {
			t.Errorf("expected defaultQueryLimit %v, got %v", DefaultQueryLimit, opts.defaultQueryLimit)
		}
		if opts.maxConcurrentSends != DefaultMaxConcurrentSends {
			t.Errorf("expected maxConcurrentSends %v, got %v", DefaultMaxConcurrentSends, opts.maxConcurrentSends)
		}
		if opts.sanitizer == nil {
			t.Error("expected default sanitizer")
		}
		if opts.reminderGate == nil {
			t.Error("expected default reminder gate")
		}
		if opts.onEventPublishFailure == nil {
			t.Error("expected default event failure handler")
		}
	})

	t.Run("caps default query limit", func(t *testing.T) {
		opts := newOptions(WithMaxQueryLimit(10), WithDefaultQueryLimit(50))
		if opts.defaultQueryLimit != 10 {
			t.Errorf("expected defaultQueryLimit capped to 10, got %d", opts.defaultQueryLimit)
		}
	})
}

func TestWithLogger(t *testing.T) {
	t.Run("sets custom logger", func(t *testing.T) {
		customLogger := slog.Default()
		opts := newOptions(WithLogger(customLogger))
		if opts.logger != customLogger {
			t.Error("expected custom logger to be set")
		}
	})

	t.Run("ignores nil logger", func(t *testing.T) {
		opts := newOptions(WithLogger(nil))
		if opts.logger == nil {
			t.Error("expected default logger when nil passed")
		}
	})
}

func TestEngineOptions(t *testing.T) {
	t.Run("WithReplyPrefix", func(t *testing.T) {
		if opts := newOptions(WithReplyPrefix("AW: ")); opts.replyPrefix != "AW: " {
			t.Errorf("expected AW:, got %q", opts.replyPrefix)
		}
		if opts := newOptions(WithReplyPrefix("")); opts.replyPrefix != DefaultReplyPrefix {
			t.Errorf("expected default prefix, got %q", opts.replyPrefix)
		}
	})

	t.Run("WithBlockedSendPolicy", func(t *testing.T) {
		if opts := newOptions(WithBlockedSendPolicy(BlockedSendNotice)); opts.blockedSendPolicy != BlockedSendNotice {
			t.Errorf("expected notice, got %v", opts.blockedSendPolicy)
		}
		if opts := newOptions(WithBlockedSendPolicy(BlockedSendPolicy(42))); opts.blockedSendPolicy != BlockedSendError {
			t.Errorf("expected unknown policy ignored, got %v", opts.blockedSendPolicy)
		}
	})

	t.Run("WithAutoReplyRetry keeps classification", func(t *testing.T) {
		opts := newOptions(WithAutoReplyRetry(retry.Config{MaxRetries: 5}))
		if opts.autoReplyRetry.MaxRetries != 5 {
			t.Errorf("expected 5 retries, got %d", opts.autoReplyRetry.MaxRetries)
		}
		if opts.autoReplyRetry.IsRetryable == nil {
			t.Error("expected classifier set")
		}
	})

	t.Run("WithSendRateLimit", func(t *testing.T) {
		opts := newOptions(WithSendRateLimit(2, 5))
		if opts.sendRate != 2 || opts.sendBurst != 5 {
			t.Errorf("expected 2/s burst 5, got %v/%d", opts.sendRate, opts.sendBurst)
		}
		if opts := newOptions(WithSendRateLimit(0, 5)); opts.sendRate != 0 {
			t.Error("expected zero rate ignored")
		}
	})

	t.Run("WithReminder", func(t *testing.T) {
		gate := reminder.NewMemory()
		opts := newOptions(WithReminderGate(gate), WithReminderInterval(time.Minute))
		if opts.reminderGate != gate {
			t.Error("expected custom gate")
		}
		if opts.reminderInterval != time.Minute {
			t.Errorf("expected 1m, got %v", opts.reminderInterval)
		}
		if opts := newOptions(WithReminderInterval(-time.Second)); opts.reminderInterval != DefaultReminderInterval {
			t.Error("expected negative interval ignored")
		}
	})

	t.Run("WithNotifier ignores nil", func(t *testing.T) {
		opts := newOptions(WithNotifier(nil), WithNotifier(NotifierFunc("log", func(context.Context, Notification) error { return nil })))
		if len(opts.notifiers) != 1 {
			t.Errorf("expected 1 notifier, got %d", len(opts.notifiers))
		}
	})
}

func TestWithOTel(t *testing.T) {
	t.Run("enables both tracing and metrics", func(t *testing.T) {
		opts := newOptions(WithOTel(true))
		if !opts.tracingEnabled {
			t.Error("expected tracing to be enabled")
		}
		if !opts.metricsEnabled {
			t.Error("expected metrics to be enabled")
		}
	})

	t.Run("disables both tracing and metrics", func(t *testing.T) {
		opts := newOptions(WithOTel(false))
		if opts.tracingEnabled {
			t.Error("expected tracing to be disabled")
		}
		if opts.metricsEnabled {
			t.Error("expected metrics to be disabled")
		}
	})

	t.Run("instrumented service works", func(t *testing.T) {
		svc := setupTestService(t, WithOTel(true), WithServiceName("privmsg-test"))
		mustSend(t, svc.Client("alice"), "traced", "bob")
	})
}

func TestWithServiceName(t *testing.T) {
	t.Run("sets service name", func(t *testing.T) {
		name := "my-messages"
		opts := newOptions(WithServiceName(name))
		if opts.serviceName != name {
			t.Errorf("expected service name %q, got %q", name, opts.serviceName)
		}
	})

	t.Run("ignores empty service name", func(t *testing.T) {
		opts := newOptions(WithServiceName(""))
		if opts.serviceName != "" {
			t.Errorf("expected empty service name, got %q", opts.serviceName)
		}
	})
}

func TestWithMaxConcurrentSends(t *testing.T) {
	t.Run("sets custom concurrent sends limit", func(t *testing.T) {
		opts := newOptions(WithMaxConcurrentSends(20))
		if opts.maxConcurrentSends != 20 {
			t.Errorf("expected maxConcurrentSends 20, got %d", opts.maxConcurrentSends)
		}
	})

	t.Run("ignores zero or negative", func(t *testing.T) {
		opts := newOptions(WithMaxConcurrentSends(0))
		if opts.maxConcurrentSends != DefaultMaxConcurrentSends {
			t.Errorf("expected default maxConcurrentSends, got %d", opts.maxConcurrentSends)
		}
	})
}

func TestWithShutdownTimeout(t *testing.T) {
	t.Run("sets custom shutdown timeout", func(t *testing.T) {
		timeout := 60 * time.Second
		opts := newOptions(WithShutdownTimeout(timeout))
		if opts.shutdownTimeout != timeout {
			t.Errorf("expected shutdownTimeout %v, got %v", timeout, opts.shutdownTimeout)
		}
	})

	t.Run("ignores timeout below minimum", func(t *testing.T) {
		opts := newOptions(WithShutdownTimeout(500 * time.Millisecond))
		if opts.shutdownTimeout != DefaultShutdownTimeout {
			t.Errorf("expected default shutdownTimeout %v, got %v", DefaultShutdownTimeout, opts.shutdownTimeout)
		}
	})
}

func TestOptionsGetLimits(t *testing.T) {
	opts := newOptions(
		WithMaxBodySize(1024),
		WithMaxContextLength(64),
		WithMaxRecipients(10),
		WithMaxParamsKeys(3),
	)

	limits := opts.getLimits()

	if limits.MaxBodySize != 1024 {
		t.Errorf("expected MaxBodySize 1024, got %d", limits.MaxBodySize)
	}
	if limits.MaxContextLength != 64 {
		t.Errorf("expected MaxContextLength 64, got %d", limits.MaxContextLength)
	}
	if limits.MaxRecipientCount != 10 {
		t.Errorf("expected MaxRecipientCount 10, got %d", limits.MaxRecipientCount)
	}
	if limits.MaxParamsKeys != 3 {
		t.Errorf("expected MaxParamsKeys 3, got %d", limits.MaxParamsKeys)
	}
	// Other limits should have default values
	if limits.MaxTitleLength != DefaultMaxTitleLength {
		t.Errorf("expected default MaxTitleLength, got %d", limits.MaxTitleLength)
	}
}

func TestBlockedSendPolicyString(t *testing.T) {
	if BlockedSendError.String() != "error" || BlockedSendNotice.String() != "notice" {
		t.Error("unexpected policy names")
	}
	if BlockedSendPolicy(9).String() != "unknown" {
		t.Error("expected unknown")
	}
}
