package metrics

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	config "github.com/tigerroll/surfin-dualdb/pkg/batch/core/config"
	metrics "github.com/tigerroll/surfin-dualdb/pkg/batch/core/metrics"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

// ScrapeHandler serves the metrics endpoint. Handler is nil when the backend is push-based.
type ScrapeHandler struct {
	Handler http.Handler
}

// RecorderResult is the output of NewMetricRecorder.
type RecorderResult struct {
	fx.Out
	Recorder metrics.MetricRecorder
	Scrape   *ScrapeHandler
}

// NewMetricRecorder selects the recorder from surfin.metrics: disabled -> no-op,
// "prometheus" -> PrometheusRecorder, "otlp-grpc"/"otlp-http" -> OTelRecorder.
func NewMetricRecorder(lc fx.Lifecycle, cfg *config.Config) (RecorderResult, error) {
	mc := cfg.Surfin.Metrics
	if !mc.Enabled {
		logger.Infof("Metrics disabled.")
		return RecorderResult{Recorder: metrics.NewNoOpMetricRecorder(), Scrape: &ScrapeHandler{}}, nil
	}

	switch strings.ToLower(mc.Backend) {
	case "", BackendPrometheus:
		r := NewPrometheusRecorder()
		return RecorderResult{Recorder: r, Scrape: &ScrapeHandler{Handler: r.Handler()}}, nil
	default:
		mp, err := NewMeterProvider(context.Background(), mc, cfg.Surfin.Tracing.ServiceName)
		if err != nil {
			return RecorderResult{}, err
		}
		lc.Append(fx.Hook{OnStop: mp.Shutdown})
		r, err := NewOTelRecorder(mp)
		if err != nil {
			return RecorderResult{}, err
		}
		return RecorderResult{Recorder: r, Scrape: &ScrapeHandler{}}, nil
	}
}

// NewTracer builds the tracer provider from surfin.tracing and returns a Tracer on it.
func NewTracer(lc fx.Lifecycle, cfg *config.Config) (metrics.Tracer, error) {
	tp, err := NewTracerProvider(context.Background(), cfg.Surfin.Tracing)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: tp.Shutdown})
	return NewOpenTelemetryTracer(trace.TracerProvider(tp)), nil
}

// Module provides the configured MetricRecorder, its scrape handler and the Tracer.
var Module = fx.Options(
	fx.Provide(NewMetricRecorder),
	fx.Provide(NewTracer),
)
