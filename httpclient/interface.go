// Package httpclient implements the authenticated request primitive shared
// by every Azure Repos resource call: one HTTP exchange with basic-auth
// encoding, JSON or plain-text content negotiation, structured failures and
// a bounded fixed-delay retry on server errors.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Client executes requests. All helpers delegate to Execute with the
// method forced.
type Client interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
	Get(ctx context.Context, req *Request) (*Response, error)
	Post(ctx context.Context, req *Request) (*Response, error)
	Put(ctx context.Context, req *Request) (*Response, error)
	Patch(ctx context.Context, req *Request) (*Response, error)
	Delete(ctx context.Context, req *Request) (*Response, error)
	Do(ctx context.Context, method string, req *Request) (*Response, error)
}

// Request describes one logical call. The zero value of every flag is the
// common case: JSON in both directions, response parsed, no retries.
type Request struct {
	URL string
	// Method defaults to GET.
	Method string
	// Token is the raw personal access token. When set, it is sent as
	// "Basic base64(":"+token)"; when empty no Authorization header is sent.
	Token string
	// Headers are applied after the generated ones and win on conflict.
	Headers map[string]string
	// Body is JSON-encoded when non-nil. With PlainText, string and []byte
	// bodies are sent verbatim.
	Body any
	// PlainText switches Accept/Content-Type to text/plain and decodes the
	// response as a string.
	PlainText bool
	// Raw returns the *http.Response without reading its body.
	Raw bool
	// RetryCount is the number of extra attempts allowed after a failure
	// that is not a 4xx. It must not be negative.
	RetryCount int
}

func (r *Request) method() string {
	if r.Method == "" {
		return nethttp.MethodGet
	}
	return r.Method
}

// Response is the outcome of a successful call.
type Response struct {
	StatusCode int
	Headers    nethttp.Header
	// Body holds the consumed body. It is nil for Raw requests.
	Body []byte
	// Payload is the decoded body: the result of unmarshaling JSON into an
	// any, or a string for PlainText requests. Nil for Raw requests and for
	// empty JSON bodies.
	Payload any
	// Raw is only set for Raw requests. Its body is unread; the caller
	// must close it.
	Raw   *nethttp.Response
	Stats Stats
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if r.Raw != nil {
		return errors.New("httpclient: cannot decode a raw response")
	}
	if len(r.Body) == 0 {
		return errors.New("httpclient: empty response body")
	}
	return json.Unmarshal(r.Body, v)
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Stats describes how the response was obtained.
type Stats struct {
	ElapsedTime time.Duration
	Attempts    int
}

// RequestInterceptor runs on every attempt after headers are composed.
type RequestInterceptor func(ctx context.Context, req *nethttp.Request) error

// ResponseInterceptor runs on every successful response before decoding.
type ResponseInterceptor func(ctx context.Context, req *nethttp.Request, resp *nethttp.Response) error

// Config holds the client configuration. Use NewBuilder to get defaults.
type Config struct {
	Timeout              time.Duration
	RetryDelay           time.Duration
	DefaultHeaders       map[string]string
	RequestInterceptors  []RequestInterceptor
	ResponseInterceptors []ResponseInterceptor
	// LogPayloads enables debug-level logging of headers and body payloads
	LogPayloads bool
	// MaxPayloadLogBytes caps the number of body bytes logged when LogPayloads is enabled
	MaxPayloadLogBytes int
	// TraceIDHeader is the header carrying the per-call trace ID (default: X-Request-ID)
	TraceIDHeader string
	// Transport overrides http.DefaultTransport
	Transport nethttp.RoundTripper
	// TracerProvider overrides the global OpenTelemetry tracer provider
	TracerProvider trace.TracerProvider
	// RateLimit caps attempts per second across the client; zero disables it
	RateLimit float64
	// RateBurst is the number of attempts allowed at once under RateLimit
	RateBurst int
}
