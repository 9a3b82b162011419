package privmsg

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/rbaliyan/privmsg"
)

// otelInstrumentation holds OpenTelemetry instrumentation for the privmsg service.
type otelInstrumentation struct {
	enabled bool

	// Tracing
	tracingEnabled bool
	tracer         trace.Tracer

	// Metrics
	metricsEnabled bool

	// Message operations
	sendLatency metric.Float64Histogram
	sendCount   metric.Int64Counter
	sendErrors  metric.Int64Counter
	getLatency  metric.Float64Histogram
	getCount    metric.Int64Counter
	getErrors   metric.Int64Counter
	listLatency metric.Float64Histogram
	listCount   metric.Int64Counter
	listErrors  metric.Int64Counter

	// Message actions
	updateLatency metric.Float64Histogram
	updateCount   metric.Int64Counter
	updateErrors  metric.Int64Counter
	deleteLatency metric.Float64Histogram
	deleteCount   metric.Int64Counter
	deleteErrors  metric.Int64Counter

	// Ignore list, grants and recipient resolution
	relationLatency metric.Float64Histogram
	relationCount   metric.Int64Counter
	relationErrors  metric.Int64Counter

	// Out-of-office replies
	autoReplyCount  metric.Int64Counter
	autoReplyErrors metric.Int64Counter
}

// newOtelInstrumentation creates new OTel instrumentation from options.
func newOtelInstrumentation(opts *options) (*otelInstrumentation, error) {
	o := &otelInstrumentation{
		enabled:        opts.tracingEnabled || opts.metricsEnabled,
		tracingEnabled: opts.tracingEnabled,
		metricsEnabled: opts.metricsEnabled,
	}

	if !o.enabled {
		return o, nil
	}

	if opts.tracingEnabled {
		tp := opts.tracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		o.tracer = tp.Tracer(instrumentationName)
	}

	if opts.metricsEnabled {
		mp := opts.meterProvider
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
		if err := o.initMetrics(mp); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// opInstruments creates the duration histogram and the count and error
// counters of one operation family.
func opInstruments(meter metric.Meter, op, what string) (metric.Float64Histogram, metric.Int64Counter, metric.Int64Counter, error) {
	latency, err := meter.Float64Histogram(
		"privmsg."+op+".duration",
		metric.WithDescription("Duration of "+what+" operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, nil, nil, err
	}
	count, err := meter.Int64Counter(
		"privmsg."+op+".count",
		metric.WithDescription("Number of "+what+" operations"),
	)
	if err != nil {
		return nil, nil, nil, err
	}
	errs, err := meter.Int64Counter(
		"privmsg."+op+".errors",
		metric.WithDescription("Number of "+what+" errors"),
	)
	if err != nil {
		return nil, nil, nil, err
	}
	return latency, count, errs, nil
}

// initMetrics initializes all metric instruments.
func (o *otelInstrumentation) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)

	var err error
	if o.sendLatency, o.sendCount, o.sendErrors, err = opInstruments(meter, "send", "send"); err != nil {
		return err
	}
	if o.getLatency, o.getCount, o.getErrors, err = opInstruments(meter, "get", "get"); err != nil {
		return err
	}
	if o.listLatency, o.listCount, o.listErrors, err = opInstruments(meter, "list", "list"); err != nil {
		return err
	}
	if o.updateLatency, o.updateCount, o.updateErrors, err = opInstruments(meter, "update", "update"); err != nil {
		return err
	}
	if o.deleteLatency, o.deleteCount, o.deleteErrors, err = opInstruments(meter, "delete", "delete"); err != nil {
		return err
	}
	if o.relationLatency, o.relationCount, o.relationErrors, err = opInstruments(meter, "relation", "ignore list and contact"); err != nil {
		return err
	}

	o.autoReplyCount, err = meter.Int64Counter(
		"privmsg.autoreply.count",
		metric.WithDescription("Number of out-of-office replies sent"),
	)
	if err != nil {
		return err
	}

	o.autoReplyErrors, err = meter.Int64Counter(
		"privmsg.autoreply.errors",
		metric.WithDescription("Number of out-of-office replies that could not be sent"),
	)
	if err != nil {
		return err
	}

	return nil
}

// startSpan starts a new span if tracing is enabled.
// The returned function ends the span and records err on it.
func (o *otelInstrumentation) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if !o.tracingEnabled || o.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := o.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// recordSend records send operation metrics.
func (o *otelInstrumentation) recordSend(ctx context.Context, duration time.Duration, kind string, recipientCount int, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Int("recipient_count", recipientCount),
	)

	o.sendLatency.Record(ctx, duration.Seconds(), attrs)
	o.sendCount.Add(ctx, 1, attrs)
	if err != nil {
		o.sendErrors.Add(ctx, 1, attrs)
	}
}

// recordGet records get operation metrics.
func (o *otelInstrumentation) recordGet(ctx context.Context, duration time.Duration, err error) {
	if !o.metricsEnabled {
		return
	}

	o.getLatency.Record(ctx, duration.Seconds())
	o.getCount.Add(ctx, 1)
	if err != nil {
		o.getErrors.Add(ctx, 1)
	}
}

// recordList records list operation metrics.
func (o *otelInstrumentation) recordList(ctx context.Context, duration time.Duration, category string, resultCount int, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("category", category),
		attribute.Int("result_count", resultCount),
	)

	o.listLatency.Record(ctx, duration.Seconds(), attrs)
	o.listCount.Add(ctx, 1, attrs)
	if err != nil {
		o.listErrors.Add(ctx, 1, attrs)
	}
}

// recordUpdate records update operation metrics.
func (o *otelInstrumentation) recordUpdate(ctx context.Context, duration time.Duration, operation string, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
	)

	o.updateLatency.Record(ctx, duration.Seconds(), attrs)
	o.updateCount.Add(ctx, 1, attrs)
	if err != nil {
		o.updateErrors.Add(ctx, 1, attrs)
	}
}

// recordDelete records delete operation metrics.
func (o *otelInstrumentation) recordDelete(ctx context.Context, duration time.Duration, permanent bool, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Bool("permanent", permanent),
	)

	o.deleteLatency.Record(ctx, duration.Seconds(), attrs)
	o.deleteCount.Add(ctx, 1, attrs)
	if err != nil {
		o.deleteErrors.Add(ctx, 1, attrs)
	}
}

// recordRelation records ignore list, contact and resolver metrics.
func (o *otelInstrumentation) recordRelation(ctx context.Context, duration time.Duration, operation string, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
	)

	o.relationLatency.Record(ctx, duration.Seconds(), attrs)
	o.relationCount.Add(ctx, 1, attrs)
	if err != nil {
		o.relationErrors.Add(ctx, 1, attrs)
	}
}

// recordAutoReply records the outcome of an out-of-office reply.
func (o *otelInstrumentation) recordAutoReply(ctx context.Context, err error) {
	if !o.metricsEnabled {
		return
	}
	if err != nil {
		o.autoReplyErrors.Add(ctx, 1)
		return
	}
	o.autoReplyCount.Add(ctx, 1)
}
