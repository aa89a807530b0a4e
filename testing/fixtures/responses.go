// Package fixtures builds canned executor outcomes for resource-layer tests.
package fixtures

import (
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gaborage/azrepos/httpclient"
)

// JSONResponse returns a parsed response whose body is v marshaled to JSON.
func JSONResponse(t *testing.T, status int, v any) *httpclient.Response {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)

	var payload any
	require.NoError(t, json.Unmarshal(body, &payload))
	return &httpclient.Response{
		StatusCode: status,
		Headers:    nethttp.Header{"Content-Type": []string{httpclient.ContentTypeJSON}},
		Body:       body,
		Payload:    payload,
		Stats:      httpclient.Stats{Attempts: 1},
	}
}

// ListResponse wraps items in the {"count","value"} collection envelope.
func ListResponse[T any](t *testing.T, items []T) *httpclient.Response {
	t.Helper()
	return JSONResponse(t, nethttp.StatusOK, map[string]any{"count": len(items), "value": items})
}

// TextResponse returns a plain-text response.
func TextResponse(status int, text string) *httpclient.Response {
	return &httpclient.Response{
		StatusCode: status,
		Headers:    nethttp.Header{"Content-Type": []string{httpclient.ContentTypeText}},
		Body:       []byte(text),
		Payload:    text,
		Stats:      httpclient.Stats{Attempts: 1},
	}
}

// RawResponse returns an unparsed response with an unread empty body.
func RawResponse(status int) *httpclient.Response {
	raw := &nethttp.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, nethttp.StatusText(status)),
		Header:     nethttp.Header{},
		Body:       io.NopCloser(strings.NewReader("")),
	}
	return &httpclient.Response{StatusCode: status, Headers: raw.Header, Raw: raw, Stats: httpclient.Stats{Attempts: 1}}
}

// HTTPFailure returns the error the executor produces for a non-2xx status.
func HTTPFailure(status int, body string) error {
	return httpclient.NewHTTPError(fmt.Sprintf("request returned %d: %s", status, body), status, []byte(body))
}

// NotFound is HTTPFailure for a typical Azure DevOps 404 body.
func NotFound(resource string) error {
	return HTTPFailure(nethttp.StatusNotFound, fmt.Sprintf(`{"message":"%s not found"}`, resource))
}
