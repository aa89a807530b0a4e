package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, "", classify(200, nil))
	assert.Equal(t, "404", classify(404, nil))
	assert.Equal(t, "503", classify(503, nil))
	assert.Equal(t, "transport_error", classify(0, errors.New("reset")))
}

func TestRecordAttemptAttributes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(mp)
	ResetForTesting()
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		ResetForTesting()
		_ = mp.Shutdown(context.Background())
	})

	RecordAttempt(context.Background(), "GET", "dev.azure.com", 503, 20*time.Millisecond, nil)
	RecordAttempt(context.Background(), "GET", "dev.azure.com", 0, time.Millisecond, errors.New("dial"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	assert.Equal(t, MeterName, rm.ScopeMetrics[0].Scope.Name)

	var found bool
	for _, m := range rm.ScopeMetrics[0].Metrics {
		if m.Name != MetricRequestDuration {
			continue
		}
		found = true
		hist := m.Data.(metricdata.Histogram[float64])
		require.Len(t, hist.DataPoints, 2)

		errTypes := map[string]bool{}
		for _, dp := range hist.DataPoints {
			v, ok := dp.Attributes.Value(attribute.Key(AttrErrorType))
			require.True(t, ok)
			errTypes[v.AsString()] = true
		}
		assert.True(t, errTypes["503"])
		assert.True(t, errTypes["transport_error"])
	}
	assert.True(t, found)
}
