// Package tracking records OpenTelemetry metrics for outbound Azure Repos
// requests.
package tracking

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// MeterName scopes every instrument created here.
	MeterName = "azrepos/httpclient"

	// Metric names following OpenTelemetry semantic conventions
	MetricRequestDuration = "http.client.request.duration" // Histogram in seconds, one point per attempt
	MetricRetries         = "azrepos.client.retries"       // Counter of retry decisions

	AttrHTTPRequestMethod  = "http.request.method"
	AttrHTTPResponseStatus = "http.response.status_code"
	AttrServerAddress      = "server.address"
	AttrErrorType          = "error.type"
)

var durationBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
}

var (
	meterOnce   sync.Once
	meterInitMu sync.Mutex

	durationHistogram metric.Float64Histogram
	retryCounter      metric.Int64Counter
)

func logMetricError(name string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize HTTP client metric %s: %v\n", name, err)
	}
}

func initMeter() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	meter := otel.Meter(MeterName)

	var err error
	durationHistogram, err = meter.Float64Histogram(
		MetricRequestDuration,
		metric.WithDescription("Duration of outbound HTTP request attempts"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	logMetricError(MetricRequestDuration, err)

	retryCounter, err = meter.Int64Counter(
		MetricRetries,
		metric.WithDescription("Number of retried outbound HTTP requests"),
		metric.WithUnit("{retry}"),
	)
	logMetricError(MetricRetries, err)
}

func ensureMeter() {
	meterOnce.Do(initMeter)
}

// RecordAttempt records the duration of one attempt. status is 0 when no
// response was received.
func RecordAttempt(ctx context.Context, method, host string, status int, d time.Duration, err error) {
	ensureMeter()
	if durationHistogram == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(AttrHTTPRequestMethod, method),
		attribute.String(AttrServerAddress, host),
	}
	if status > 0 {
		attrs = append(attrs, attribute.Int(AttrHTTPResponseStatus, status))
	}
	if errType := classify(status, err); errType != "" {
		attrs = append(attrs, attribute.String(AttrErrorType, errType))
	}
	durationHistogram.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRetry counts one retry decision after a failed attempt.
func RecordRetry(ctx context.Context, method string, status int) {
	ensureMeter()
	if retryCounter == nil {
		return
	}
	retryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrHTTPRequestMethod, method),
		attribute.Int(AttrHTTPResponseStatus, status),
	))
}

func classify(status int, err error) string {
	if status >= 400 {
		return strconv.Itoa(status)
	}
	if err != nil {
		return "transport_error"
	}
	return ""
}

// ResetForTesting drops the instruments so the next call binds to the
// current global meter provider. Tests only.
func ResetForTesting() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	durationHistogram = nil
	retryCounter = nil
	meterOnce = sync.Once{}
}
