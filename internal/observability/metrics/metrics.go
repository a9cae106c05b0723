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
	billsCreated     metric.Int64Counter
	billsDeleted     metric.Int64Counter
	paymentVerifies  metric.Int64Counter
	ledgerDeltas     metric.Int64Counter
	gatewayOrders    metric.Int64Counter
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
		name = "wattline"
	}
	meter := provider.Meter(name)

	billsCreated, err := meter.Int64Counter("wattline_bills_created_total")
	if err != nil {
		return nil, err
	}
	billsDeleted, err := meter.Int64Counter("wattline_bills_deleted_total")
	if err != nil {
		return nil, err
	}
	paymentVerifies, err := meter.Int64Counter("wattline_payment_verifications_total")
	if err != nil {
		return nil, err
	}
	ledgerDeltas, err := meter.Int64Counter("wattline_consumption_deltas_total")
	if err != nil {
		return nil, err
	}
	gatewayOrders, err := meter.Int64Counter("wattline_gateway_orders_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		billsCreated:    billsCreated,
		billsDeleted:    billsDeleted,
		paymentVerifies: paymentVerifies,
		ledgerDeltas:    ledgerDeltas,
		gatewayOrders:   gatewayOrders,
	}, nil
}

// RecordBillCreated increments bill creation counts.
func (m *Metrics) RecordBillCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.billsCreated.Add(ctx, 1)
}

// RecordBillDeleted increments bill deletion counts.
func (m *Metrics) RecordBillDeleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.billsDeleted.Add(ctx, 1)
}

// RecordPaymentVerification increments verification counts by outcome.
func (m *Metrics) RecordPaymentVerification(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.paymentVerifies.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLedgerDelta increments consumption aggregate mutation counts.
func (m *Metrics) RecordLedgerDelta(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.ledgerDeltas.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordGatewayOrder increments gateway order creation counts by outcome.
func (m *Metrics) RecordGatewayOrder(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.gatewayOrders.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"endpoint":    {},
	"status_code": {},
	"outcome":     {},
	"operation":   {},
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
