package httpclient

import (
	nethttp "net/http"
	"time"
)

const (
	logMsgRequest  = "REST client request"
	logMsgResponse = "REST client response"
	logMsgFailure  = "REST client request failed"
	logMsgRetry    = "REST client retrying request"
)

func (c *client) maxPayloadBytes() int {
	if c.config.MaxPayloadLogBytes > 0 {
		return c.config.MaxPayloadLogBytes
	}
	return DefaultMaxPayloadLogBytes
}

func (c *client) preview(body []byte) (preview []byte, truncated string) {
	limit := c.maxPayloadBytes()
	if len(body) > limit {
		return body[:limit], "true"
	}
	return body, "false"
}

// logRequest emits the request-start line. Payloads go to debug only.
func (c *client) logRequest(req *nethttp.Request, body []byte, traceID string) {
	ev := c.logger.Info().
		Str("direction", "outbound").
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("request_id", traceID)
	if n := len(req.Header); n > 0 {
		ev = ev.Int("header_count", n)
	}
	if len(body) > 0 {
		ev = ev.Int("body_size", len(body))
	}
	ev.Msg(logMsgRequest)

	if !c.config.LogPayloads {
		return
	}
	preview, truncated := c.preview(body)
	c.logger.Debug().
		Str("direction", "outbound").
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("request_id", traceID).
		Interface("headers", req.Header).
		Int("body_size", len(body)).
		Str("body_truncated", truncated).
		Bytes("body_preview", preview).
		Msg(logMsgRequest)
}

func (c *client) logResponse(resp *Response, traceID string) {
	ev := c.logger.Info().
		Str("direction", "inbound").
		Int("status", resp.StatusCode).
		Dur("elapsed", resp.Stats.ElapsedTime).
		Int("attempts", resp.Stats.Attempts).
		Str("request_id", traceID)
	if len(resp.Body) > 0 {
		ev = ev.Int("body_size", len(resp.Body))
	}
	ev.Msg(logMsgResponse)

	if !c.config.LogPayloads {
		return
	}
	preview, truncated := c.preview(resp.Body)
	c.logger.Debug().
		Str("direction", "inbound").
		Int("status", resp.StatusCode).
		Str("request_id", traceID).
		Interface("headers", resp.Headers).
		Int("body_size", len(resp.Body)).
		Str("body_truncated", truncated).
		Bytes("body_preview", preview).
		Msg(logMsgResponse)
}

// logFailure emits the error line for a non-2xx response, including the
// captured body.
func (c *client) logFailure(req *nethttp.Request, status int, body []byte, traceID string, attempt int) {
	preview, _ := c.preview(body)
	c.logger.Error().
		Str("direction", "inbound").
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("status", status).
		Str("body", string(preview)).
		Int("attempt", attempt).
		Str("request_id", traceID).
		Msg(logMsgFailure)
}

func (c *client) logTransportFailure(method, url string, err error, traceID string, attempt int) {
	c.logger.Error().
		Err(err).
		Str("method", method).
		Str("url", url).
		Int("attempt", attempt).
		Str("request_id", traceID).
		Msg(logMsgFailure)
}

func (c *client) logRetry(method, url string, status, remaining int, delay time.Duration, traceID string) {
	c.logger.Warn().
		Str("method", method).
		Str("url", url).
		Int("status", status).
		Int("retries_left", remaining).
		Dur("delay", delay).
		Str("request_id", traceID).
		Msg(logMsgRetry)
}
