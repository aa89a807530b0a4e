package httpclient

import (
	"maps"
	nethttp "net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/gaborage/azrepos/logger"
)

const (
	// DefaultTimeout bounds one HTTP exchange.
	DefaultTimeout = 30 * time.Second
	// DefaultRetryDelay is the fixed wait between attempts.
	DefaultRetryDelay = 500 * time.Millisecond
	// DefaultMaxPayloadLogBytes caps logged body previews.
	DefaultMaxPayloadLogBytes = 1024
)

// Builder assembles a Client.
type Builder struct {
	logger logger.Logger
	config *Config
}

// NewBuilder starts a Builder with default settings. A nil logger discards
// log output.
func NewBuilder(log logger.Logger) *Builder {
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{
		logger: log,
		config: &Config{
			Timeout:            DefaultTimeout,
			RetryDelay:         DefaultRetryDelay,
			DefaultHeaders:     make(map[string]string),
			MaxPayloadLogBytes: DefaultMaxPayloadLogBytes,
			TraceIDHeader:      HeaderXRequestID,
		},
	}
}

// WithTimeout sets the request timeout
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.config.Timeout = timeout
	return b
}

// WithRetryDelay sets the fixed delay between attempts. Zero retries
// immediately.
func (b *Builder) WithRetryDelay(delay time.Duration) *Builder {
	if delay >= 0 {
		b.config.RetryDelay = delay
	}
	return b
}

// WithDefaultHeader adds a header sent on every request.
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.config.DefaultHeaders[key] = value
	return b
}

// WithDefaultHeaders adds several default headers at once
func (b *Builder) WithDefaultHeaders(headers map[string]string) *Builder {
	maps.Copy(b.config.DefaultHeaders, headers)
	return b
}

// WithRequestInterceptor adds a request interceptor
func (b *Builder) WithRequestInterceptor(interceptor RequestInterceptor) *Builder {
	b.config.RequestInterceptors = append(b.config.RequestInterceptors, interceptor)
	return b
}

// WithResponseInterceptor adds a response interceptor
func (b *Builder) WithResponseInterceptor(interceptor ResponseInterceptor) *Builder {
	b.config.ResponseInterceptors = append(b.config.ResponseInterceptors, interceptor)
	return b
}

// WithLogPayloads enables debug logging of headers and bodies, truncated
// to maxBytes. A non-positive maxBytes keeps the default.
func (b *Builder) WithLogPayloads(enabled bool, maxBytes int) *Builder {
	b.config.LogPayloads = enabled
	if maxBytes > 0 {
		b.config.MaxPayloadLogBytes = maxBytes
	}
	return b
}

// WithTraceIDHeader changes the header carrying the per-call trace ID.
func (b *Builder) WithTraceIDHeader(header string) *Builder {
	if header != "" {
		b.config.TraceIDHeader = header
	}
	return b
}

// WithTransport replaces the underlying round tripper.
func (b *Builder) WithTransport(rt nethttp.RoundTripper) *Builder {
	b.config.Transport = rt
	return b
}

// WithTracerProvider uses tp instead of the global tracer provider.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.config.TracerProvider = tp
	return b
}

// WithRateLimit throttles attempts to requestsPerSecond with the given burst.
// Every attempt, retries included, takes a token.
func (b *Builder) WithRateLimit(requestsPerSecond float64, burst int) *Builder {
	b.config.RateLimit = requestsPerSecond
	b.config.RateBurst = burst
	return b
}

// Build creates the Client. The Builder must not be reused afterwards.
func (b *Builder) Build() Client {
	c := &client{
		httpClient: &nethttp.Client{
			Timeout:   b.config.Timeout,
			Transport: b.config.Transport,
		},
		config: b.config,
		logger: b.logger,
	}
	if b.config.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(b.config.RateLimit), max(b.config.RateBurst, 1))
	}
	return c
}
