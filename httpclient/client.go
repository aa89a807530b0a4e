package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/gaborage/azrepos/httpclient/internal/tracking"
	"github.com/gaborage/azrepos/logger"
)

const (
	tracerName = "azrepos/httpclient"

	attrAttempts   = "azrepos.attempts"
	attrURLFull    = "url.full"
	attrHTTPMethod = "http.request.method"
	attrHTTPStatus = "http.response.status_code"
)

type client struct {
	httpClient *nethttp.Client
	config     *Config
	logger     logger.Logger
	limiter    *rate.Limiter
}

var _ Client = (*client)(nil)

// Get performs a GET request
func (c *client) Get(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodGet, req)
}

// Post performs a POST request
func (c *client) Post(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPost, req)
}

// Put performs a PUT request
func (c *client) Put(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPut, req)
}

// Patch performs a PATCH request
func (c *client) Patch(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPatch, req)
}

// Delete performs a DELETE request
func (c *client) Delete(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodDelete, req)
}

// Do executes a copy of req with its method replaced.
func (c *client) Do(ctx context.Context, method string, req *Request) (*Response, error) {
	if req == nil {
		return nil, NewValidationError("request is nil", "")
	}
	r := *req
	r.Method = method
	return c.Execute(ctx, &r)
}

// Execute performs the call described by req. A 4xx response fails on the
// first attempt. Any other non-2xx response is retried after RetryDelay
// until RetryCount extra attempts are spent. Transport failures are never
// retried.
func (c *client) Execute(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, NewValidationError("request is nil", "")
	}
	if req.RetryCount < 0 {
		return nil, NewValidationError("retry count must not be negative", "RetryCount")
	}

	body, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	method := req.method()
	traceID := EnsureTraceID(ctx)

	ctx, span := c.tracer().Start(ctx, method+" azrepos",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrHTTPMethod, method),
			attribute.String(attrURLFull, req.URL),
		),
	)
	defer span.End()

	start := time.Now()
	remaining := req.RetryCount
	for attempt := 1; ; attempt++ {
		resp, err := c.attempt(ctx, method, req, body, traceID, attempt)
		if err == nil {
			resp.Stats = Stats{ElapsedTime: time.Since(start), Attempts: attempt}
			span.SetAttributes(attribute.Int(attrHTTPStatus, resp.StatusCode), attribute.Int(attrAttempts, attempt))
			span.SetStatus(codes.Ok, "")
			c.logResponse(resp, traceID)
			return resp, nil
		}

		status, isHTTP := StatusCodeOf(err)
		if !isHTTP || !IsRetryableStatus(status) || remaining == 0 {
			recordSpanError(span, err, status, attempt)
			return nil, err
		}

		remaining--
		tracking.RecordRetry(ctx, method, status)
		c.logRetry(method, req.URL, status, remaining, c.config.RetryDelay, traceID)
		if err := sleep(ctx, c.config.RetryDelay); err != nil {
			recordSpanError(span, err, status, attempt)
			return nil, err
		}
	}
}

// attempt performs exactly one HTTP exchange.
func (c *client) attempt(ctx context.Context, method string, req *Request, body []byte, traceID string, attempt int) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var reader io.Reader = nethttp.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := nethttp.NewRequestWithContext(ctx, method, req.URL, reader)
	if err != nil {
		return nil, NewNetworkError(fmt.Sprintf("%s %s: cannot build request", method, req.URL), err)
	}
	c.composeHeaders(httpReq, req, traceID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	for _, interceptor := range c.config.RequestInterceptors {
		if err := interceptor(ctx, httpReq); err != nil {
			return nil, NewInterceptorError("request interceptor failed", "request", err)
		}
	}

	c.logRequest(httpReq, body, traceID)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		tracking.RecordAttempt(ctx, method, httpReq.URL.Host, 0, time.Since(start), err)
		c.logTransportFailure(method, req.URL, err, traceID, attempt)
		return nil, c.transportError(ctx, method, req.URL, err)
	}
	tracking.RecordAttempt(ctx, method, httpReq.URL.Host, httpResp.StatusCode, time.Since(start), nil)

	if !IsSuccessStatus(httpResp.StatusCode) {
		captured := readBestEffort(httpResp.Body)
		c.logFailure(httpReq, httpResp.StatusCode, captured, traceID, attempt)
		return nil, &httpError{
			message:    fmt.Sprintf("%s %s returned %d: %s", method, req.URL, httpResp.StatusCode, captured),
			statusCode: httpResp.StatusCode,
			body:       captured,
			url:        req.URL,
		}
	}

	for _, interceptor := range c.config.ResponseInterceptors {
		if err := interceptor(ctx, httpReq, httpResp); err != nil {
			_ = httpResp.Body.Close()
			return nil, NewInterceptorError("response interceptor failed", "response", err)
		}
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Headers: httpResp.Header}
	if req.Raw {
		resp.Raw = httpResp
		return resp, nil
	}

	defer httpResp.Body.Close()
	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewNetworkError(fmt.Sprintf("%s %s: reading response body", method, req.URL), err)
	}
	resp.Body = data

	if req.PlainText {
		resp.Payload = string(data)
		return resp, nil
	}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &resp.Payload); err != nil {
			return nil, fmt.Errorf("decoding response from %s: %w", req.URL, err)
		}
	}
	return resp, nil
}

// composeHeaders applies, in increasing precedence: default headers,
// content negotiation, Authorization, trace ID, explicit request headers.
func (c *client) composeHeaders(httpReq *nethttp.Request, req *Request, traceID string) {
	h := httpReq.Header
	for k, v := range c.config.DefaultHeaders {
		h.Set(k, v)
	}

	contentType := ContentTypeJSON
	if req.PlainText {
		contentType = ContentTypeText
	}
	h.Set(HeaderAccept, contentType)
	h.Set(HeaderContentType, contentType)

	if req.Token != "" {
		h.Set(HeaderAuthorization, BasicAuthHeader(req.Token))
	}
	if c.config.TraceIDHeader != "" && h.Get(c.config.TraceIDHeader) == "" {
		h.Set(c.config.TraceIDHeader, traceID)
	}

	for k, v := range req.Headers {
		h.Set(k, v)
	}
}

// transportError classifies a failed exchange. A done caller context wins
// over the http.Client timeout, which is reported only when it fired.
func (c *client) transportError(ctx context.Context, method, url string, err error) error {
	msg := fmt.Sprintf("%s %s", method, url)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newTimeoutErrorWithCause(msg, 0, err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return newTimeoutErrorWithCause(msg, c.config.Timeout, err)
	}
	return NewNetworkError(msg, err)
}

// TracerProvider returns the provider the client records spans on.
func (c *client) TracerProvider() trace.TracerProvider {
	if c.config.TracerProvider != nil {
		return c.config.TracerProvider
	}
	return otel.GetTracerProvider()
}

func (c *client) tracer() trace.Tracer {
	return c.TracerProvider().Tracer(tracerName)
}

func encodeBody(req *Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	if req.PlainText {
		switch b := req.Body.(type) {
		case string:
			return []byte(b), nil
		case []byte:
			return b, nil
		}
	}
	return json.Marshal(req.Body)
}

// readBestEffort drains and closes body. A read error yields whatever was
// read so far, never an error.
func readBestEffort(body io.ReadCloser) []byte {
	if body == nil {
		return nil
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	return data
}

func recordSpanError(span trace.Span, err error, status, attempt int) {
	if status > 0 {
		span.SetAttributes(attribute.Int(attrHTTPStatus, status))
	}
	span.SetAttributes(attribute.Int(attrAttempts, attempt))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
