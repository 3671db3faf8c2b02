package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"

	"vocalwrite/internal/domain"
)

const meterName = "vocalwrite"

// Telemetry owns the meter provider and the Prometheus registry it exports to.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler
	logger   *slog.Logger

	sessionsStarted metric.Int64Counter
	sessionErrors   metric.Int64Counter
	sessionDuration metric.Float64Histogram
	framesSent      metric.Int64Counter
	framesDropped   metric.Int64Counter
	audioBytes      metric.Int64Counter
	httpRequests    metric.Int64Counter
}

func Setup(serviceName string, logger *slog.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	t := &Telemetry{
		provider: provider,
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		logger:   logger,
	}
	if err := t.initInstruments(provider.Meter(meterName)); err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}

	logger.Info("telemetry initialized", slog.String("exporter", "prometheus"))
	return t, nil
}

func (t *Telemetry) initInstruments(meter metric.Meter) error {
	var err error
	if t.sessionsStarted, err = meter.Int64Counter("vocalwrite.sessions.started",
		metric.WithDescription("Recording sessions started")); err != nil {
		return fmt.Errorf("create sessions counter: %w", err)
	}
	if t.sessionErrors, err = meter.Int64Counter("vocalwrite.sessions.errors",
		metric.WithDescription("Session failures by error code")); err != nil {
		return fmt.Errorf("create errors counter: %w", err)
	}
	if t.sessionDuration, err = meter.Float64Histogram("vocalwrite.session.duration",
		metric.WithDescription("Recording session duration"),
		metric.WithUnit("s")); err != nil {
		return fmt.Errorf("create duration histogram: %w", err)
	}
	if t.framesSent, err = meter.Int64Counter("vocalwrite.frames.sent",
		metric.WithDescription("Audio frames forwarded to recognition")); err != nil {
		return fmt.Errorf("create frames counter: %w", err)
	}
	if t.framesDropped, err = meter.Int64Counter("vocalwrite.frames.dropped",
		metric.WithDescription("Audio frames dropped because the session queue was full")); err != nil {
		return fmt.Errorf("create dropped counter: %w", err)
	}
	if t.audioBytes, err = meter.Int64Counter("vocalwrite.audio.sent",
		metric.WithDescription("PCM bytes forwarded to recognition"),
		metric.WithUnit("By")); err != nil {
		return fmt.Errorf("create bytes counter: %w", err)
	}
	if t.httpRequests, err = meter.Int64Counter("vocalwrite.http.requests",
		metric.WithDescription("Backend API requests by route and status")); err != nil {
		return fmt.Errorf("create requests counter: %w", err)
	}
	return nil
}

// Handler serves the Prometheus scrape endpoint.
func (t *Telemetry) Handler() http.Handler {
	return t.handler
}

// Serve exposes Handler on its own listener until ctx ends.
func (t *Telemetry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", t.handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("metrics listener started", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics listener: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

func (t *Telemetry) SessionStarted(ctx context.Context) {
	t.sessionsStarted.Add(ctx, 1)
}

func (t *Telemetry) SessionEnded(ctx context.Context, elapsed time.Duration) {
	t.sessionDuration.Record(ctx, elapsed.Seconds())
}

func (t *Telemetry) FrameSent(ctx context.Context, bytes int) {
	t.framesSent.Add(ctx, 1)
	t.audioBytes.Add(ctx, int64(bytes))
}

func (t *Telemetry) FrameDropped(ctx context.Context) {
	t.framesDropped.Add(ctx, 1)
}

func (t *Telemetry) SessionError(ctx context.Context, code domain.ErrorCode) {
	t.sessionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", string(code))))
}

func (t *Telemetry) RequestServed(ctx context.Context, route string, status int) {
	t.httpRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}
