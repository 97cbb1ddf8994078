package runtime

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/BDNK1/nodeflow/runtime"

// instruments records a span and two metrics for every handler invocation.
type instruments struct {
	tracer     trace.Tracer
	executions metric.Int64Counter
	duration   metric.Float64Histogram
}

func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider) *instruments {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	executions, err := meter.Int64Counter("nodeflow.node.executions",
		metric.WithDescription("Node handler invocations by outcome"))
	if err != nil {
		executions, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("nodeflow.node.executions")
	}
	duration, err := meter.Float64Histogram("nodeflow.node.duration",
		metric.WithDescription("Node handler duration"),
		metric.WithUnit("ms"))
	if err != nil {
		duration, _ = noop.NewMeterProvider().Meter(instrumentationName).Float64Histogram("nodeflow.node.duration")
	}

	return &instruments{
		tracer:     tp.Tracer(instrumentationName),
		executions: executions,
		duration:   duration,
	}
}

func (in *instruments) start(ctx context.Context, executionID string, node Node) (context.Context, trace.Span) {
	return in.tracer.Start(ctx, "node."+node.NodeType,
		trace.WithAttributes(
			attribute.String("nodeflow.execution.id", executionID),
			attribute.String("nodeflow.node.id", node.ID),
			attribute.String("nodeflow.node.type", node.NodeType),
		))
}

func (in *instruments) end(ctx context.Context, span trace.Span, node Node, started time.Time, err error) {
	status := string(StatusSuccess)
	if err != nil {
		status = string(StatusError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("nodeflow.node.status", status))
	span.End()

	attrs := metric.WithAttributes(
		attribute.String("nodeflow.node.type", node.NodeType),
		attribute.String("nodeflow.node.status", status),
	)
	in.executions.Add(ctx, 1, attrs)
	in.duration.Record(ctx, float64(time.Since(started))/float64(time.Millisecond), attrs)
}
