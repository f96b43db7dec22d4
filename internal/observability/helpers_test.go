package observability

import (
	"context"
	"strings"
	"testing"

	promclient "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// newTestMeter returns a meter provider whose metrics land in a private registry.
func newTestMeter(t *testing.T) (*sdkmetric.MeterProvider, *promclient.Registry) {
	t.Helper()
	reg := promclient.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	require.NoError(t, err)
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return mp, reg
}

// family gathers reg and returns the metric family whose name starts with prefix.
func family(t *testing.T, reg *promclient.Registry, prefix string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), prefix) {
			return f
		}
	}
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	t.Fatalf("no metric family with prefix %q in %v", prefix, names)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// counterByLabel sums counter samples in f whose label name equals value.
func counterByLabel(f *dto.MetricFamily, name, value string) float64 {
	var total float64
	for _, m := range f.GetMetric() {
		if labelValue(m, name) == value {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
