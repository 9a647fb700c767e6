package lsp

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
	tracer = otel.Tracer("lsp-mcp/lsp")
	meter  = otel.Meter("lsp-mcp/lsp")
)

var (
	requestLatency metric.Float64Histogram
	sessionStarts  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments. Safe to call multiple times
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		requestLatency, err = meter.Float64Histogram(
			"lsp_request_duration_seconds",
			metric.WithDescription("Duration of language server requests"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		sessionStarts, err = meter.Int64Counter(
			"lsp_session_starts_total",
			metric.WithDescription("Total number of language server session starts"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startRequestSpan(ctx context.Context, method, language, path string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "lsp."+method,
		trace.WithAttributes(
			attribute.String("lsp.method", method),
			attribute.String("lsp.language", language),
			attribute.String("lsp.file_path", path),
		),
	)
}

func recordRequest(ctx context.Context, method, language string, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	requestLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("language", language),
		attribute.Bool("success", success),
	))
}

func recordSessionStart(ctx context.Context, language string, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	sessionStarts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.Bool("success", success),
	))
}
