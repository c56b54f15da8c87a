package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	actionsReserved  metric.Int64Counter
	actionsResolved  metric.Int64Counter
	creditsSpent     metric.Int64Counter
	sweepRefunds     metric.Int64Counter
	providerLatency  metric.Int64Histogram
	rateLimitAllowed metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "thinklab"
	}
	meter := provider.Meter(name)

	actionsReserved, err := meter.Int64Counter("thinklab_actions_reserved_total")
	if err != nil {
		return nil, err
	}
	actionsResolved, err := meter.Int64Counter("thinklab_actions_resolved_total")
	if err != nil {
		return nil, err
	}
	creditsSpent, err := meter.Int64Counter("thinklab_credits_spent_total")
	if err != nil {
		return nil, err
	}
	sweepRefunds, err := meter.Int64Counter("thinklab_sweep_refunds_total")
	if err != nil {
		return nil, err
	}
	providerLatency, err := meter.Int64Histogram("thinklab_provider_latency_ms")
	if err != nil {
		return nil, err
	}
	rateLimitAllowed, err := meter.Int64Counter("thinklab_rate_limit_allowed_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("thinklab_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		actionsReserved:  actionsReserved,
		actionsResolved:  actionsResolved,
		creditsSpent:     creditsSpent,
		sweepRefunds:     sweepRefunds,
		providerLatency:  providerLatency,
		rateLimitAllowed: rateLimitAllowed,
		rateLimitDenied:  rateLimitDenied,
	}, nil
}

// RecordReservation increments reservation counts for an action kind.
func (m *Metrics) RecordReservation(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("action_kind", strings.TrimSpace(kind)))
	m.actionsReserved.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordResolution increments resolution counts by outcome status.
func (m *Metrics) RecordResolution(ctx context.Context, kind, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("action_kind", strings.TrimSpace(kind)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.actionsResolved.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCreditsSpent accumulates committed credit spend.
func (m *Metrics) RecordCreditsSpent(ctx context.Context, kind string, cost int64) {
	if m == nil || cost <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("action_kind", strings.TrimSpace(kind)))
	m.creditsSpent.Add(ctx, cost, metric.WithAttributes(attrs...))
}

// RecordSweepRefund increments refund counts issued by the reconciliation sweep.
func (m *Metrics) RecordSweepRefund(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("action_kind", strings.TrimSpace(kind)))
	m.sweepRefunds.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordProviderLatency observes upstream provider call duration.
func (m *Metrics) RecordProviderLatency(ctx context.Context, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("action_kind", strings.TrimSpace(kind)))
	m.providerLatency.Record(ctx, elapsed.Milliseconds(), metric.WithAttributes(attrs...))
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"action_kind": {},
	"status":      {},
	"endpoint":    {},
	"status_code": {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
