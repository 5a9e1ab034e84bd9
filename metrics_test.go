package cloak

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type metricsRecord struct {
	Secret string `encrypt:"pii"`
}

type metricsPlain struct {
	Name string
}

// counterValue sums the data points of the named counter for typeName.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name, typeName string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s data = %T, want Sum[int64]", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value("cloak.type"); ok && v.AsString() == typeName {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestMetrics_WrapCountsSuccessOnly(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	ctx := context.Background()
	r := NewRegistry()
	key, err := GenerateKey("pii", 32)
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	if _, err := AsEncrypted(ctx, &metricsPlain{}, nil, WithRegistry(r)); err == nil {
		t.Fatal("AsEncrypted() of a type without marked fields should fail")
	}
	if got := counterValue(t, reader, "cloak.instance.wraps", "cloak.metricsPlain"); got != 0 {
		t.Errorf("wraps after a failed wrap = %d, want 0", got)
	}

	if _, err := AsEncrypted(ctx, &metricsRecord{Secret: "s"}, NewKeyring(key), WithRegistry(r)); err != nil {
		t.Fatalf("AsEncrypted() error: %v", err)
	}
	if got := counterValue(t, reader, "cloak.instance.wraps", "cloak.metricsRecord"); got != 1 {
		t.Errorf("wraps after a successful wrap = %d, want 1", got)
	}
}
