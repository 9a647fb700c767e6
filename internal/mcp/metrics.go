package mcp

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("lsp-mcp/mcp")
	meter  = otel.Meter("lsp-mcp/mcp")
)

var (
	toolCalls    metric.Int64Counter
	toolDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		toolCalls, err = meter.Int64Counter(
			"mcp_tool_calls_total",
			metric.WithDescription("Total number of tool invocations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		toolDuration, err = meter.Float64Histogram(
			"mcp_tool_call_duration_seconds",
			metric.WithDescription("Duration of tool invocations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startToolSpan(ctx context.Context, tool string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "mcp.tool_call",
		trace.WithAttributes(attribute.String("mcp.tool", tool)),
	)
}

func recordToolCall(ctx context.Context, tool, outcome string, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("outcome", outcome),
	)
	toolCalls.Add(ctx, 1, attrs)
	toolDuration.Record(ctx, duration.Seconds(), attrs)
}
