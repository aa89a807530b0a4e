package httpclient

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRepoPath  = "/org/proj/_apis/git/repositories/repo1"
	testLabelPath = "/org/proj/_apis/git/repositories/repo1/pullRequests/7/labels"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// newCountingServer serves statuses[i] with bodies[i] on the i-th call and
// repeats the last entry afterwards.
func newCountingServer(t *testing.T, statuses []int, bodies []string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		i := int(atomic.AddInt32(&calls, 1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		w.WriteHeader(statuses[i])
		_, _ = io.WriteString(w, bodies[i])
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(log *fakeLogger, delay time.Duration) Client {
	return NewBuilder(log).WithRetryDelay(delay).Build()
}

func TestExecuteGetRepository(t *testing.T) {
	var gotAuth, gotAccept, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, testRepoPath, r.URL.Path)
		gotAuth = r.Header.Get(HeaderAuthorization)
		gotAccept = r.Header.Get(HeaderAccept)
		gotContentType = r.Header.Get(HeaderContentType)
		w.Header().Set(HeaderContentType, ContentTypeJSON)
		_, _ = io.WriteString(w, `{"name":"repo1","isFork":false,"defaultBranch":"main"}`)
	}))
	defer srv.Close()

	c := newTestClient(&fakeLogger{}, 0)
	resp, err := c.Execute(context.Background(), &Request{URL: srv.URL + testRepoPath, Token: "secret-pat"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"name": "repo1", "isFork": false, "defaultBranch": "main"}, resp.Payload)
	assert.Equal(t, 1, resp.Stats.Attempts)

	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte(":secret-pat"))
	assert.Equal(t, expected, gotAuth)
	assert.Equal(t, ContentTypeJSON, gotAccept)
	assert.Equal(t, ContentTypeJSON, gotContentType)

	var repo struct {
		Name          string `json:"name"`
		DefaultBranch string `json:"defaultBranch"`
	}
	require.NoError(t, resp.Decode(&repo))
	assert.Equal(t, "repo1", repo.Name)
	assert.Equal(t, "main", repo.DefaultBranch)
}

func TestExecuteRetriesServerErrorsThenSucceeds(t *testing.T) {
	srv, calls := newCountingServer(t,
		[]int{http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusCreated},
		[]string{"busy", "busy", `{"name":"bug","active":true}`},
	)
	log := &fakeLogger{}
	c := NewBuilder(log).Build()

	start := time.Now()
	resp, err := c.Post(context.Background(), &Request{
		URL:        srv.URL + testLabelPath,
		Body:       map[string]string{"name": "bug"},
		RetryCount: 2,
	})
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, map[string]any{"name": "bug", "active": true}, resp.Payload)
	assert.Equal(t, 3, resp.Stats.Attempts)
	assert.GreaterOrEqual(t, elapsed, 2*DefaultRetryDelay)

	assert.Len(t, log.eventsByLevel("warn"), 2)
	assert.Len(t, log.eventsByLevel("error"), 2)
}

func TestExecuteClientErrorIsNeverRetried(t *testing.T) {
	srv, calls := newCountingServer(t, []int{http.StatusNotFound}, []string{`{"message":"label not found"}`})
	c := newTestClient(&fakeLogger{}, time.Millisecond)

	url := srv.URL + testLabelPath + "/bug"
	_, err := c.Delete(context.Background(), &Request{URL: url, Raw: true, RetryCount: 3})
	require.Error(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.True(t, IsErrorType(err, HTTPError))
	assert.True(t, IsHTTPStatusError(err, http.StatusNotFound))
	assert.Contains(t, err.Error(), url)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "label not found")

	body, ok := BodyOf(err)
	require.True(t, ok)
	assert.Contains(t, string(body), "label not found")

	var he *httpError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, url, he.URL())
}

func TestExecuteServerErrorWithoutRetries(t *testing.T) {
	srv, calls := newCountingServer(t, []int{http.StatusInternalServerError}, []string{"boom"})
	c := newTestClient(&fakeLogger{}, time.Millisecond)

	_, err := c.Get(context.Background(), &Request{URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.True(t, IsHTTPStatusError(err, http.StatusInternalServerError))
}

func TestExecuteExhaustsRetries(t *testing.T) {
	srv, calls := newCountingServer(t, []int{http.StatusBadGateway}, []string{"upstream"})
	c := newTestClient(&fakeLogger{}, time.Millisecond)

	_, err := c.Get(context.Background(), &Request{URL: srv.URL, RetryCount: 3})
	require.Error(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(calls))
	assert.True(t, IsHTTPStatusError(err, http.StatusBadGateway))
}

func TestExecuteRedirectStatusIsRetryable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	c := newTestClient(&fakeLogger{}, time.Millisecond)
	_, err := c.Get(context.Background(), &Request{URL: srv.URL, RetryCount: 1})
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.True(t, IsHTTPStatusError(err, http.StatusNotModified))
}

func TestExecuteTransportErrorIsNotRetried(t *testing.T) {
	var calls int32
	transport := roundTripperFunc(func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("connection reset by peer")
	})
	c := NewBuilder(&fakeLogger{}).WithTransport(transport).WithRetryDelay(time.Millisecond).Build()

	url := "https://dev.azure.com/org/proj/_apis/git/repositories/repo1"
	_, err := c.Get(context.Background(), &Request{URL: url, RetryCount: 3})
	require.Error(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, IsErrorType(err, NetworkError))
	assert.Contains(t, err.Error(), url)
	assert.Contains(t, err.Error(), "connection reset by peer")
	_, isHTTP := StatusCodeOf(err)
	assert.False(t, isHTTP)
}

func TestExecuteClosedServerIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(&fakeLogger{}, time.Millisecond)
	_, err := c.Get(context.Background(), &Request{URL: url, RetryCount: 2})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, NetworkError))
	assert.Contains(t, err.Error(), url)
}

func TestExecuteMalformedURLIsNetworkError(t *testing.T) {
	c := newTestClient(&fakeLogger{}, 0)
	_, err := c.Get(context.Background(), &Request{URL: "://not a url"})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, NetworkError))
}

func TestExecuteTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewBuilder(&fakeLogger{}).WithTimeout(50 * time.Millisecond).Build()
	_, err := c.Get(context.Background(), &Request{URL: srv.URL, RetryCount: 2})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, TimeoutError))
}

func TestExecuteCallerDeadlineIsReportedWithCause(t *testing.T) {
	var calls int32
	transport := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		<-r.Context().Done()
		return nil, r.Context().Err()
	})
	c := NewBuilder(&fakeLogger{}).WithTransport(transport).WithRetryDelay(time.Millisecond).Build()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	url := "http://example.invalid/repo"
	_, err := c.Get(ctx, &Request{URL: url, RetryCount: 2})
	require.Error(t, err)

	assert.True(t, IsErrorType(err, TimeoutError))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), url)
	assert.Contains(t, err.Error(), "context deadline exceeded")
	assert.Contains(t, err.Error(), "(context deadline)")
	assert.NotContains(t, err.Error(), DefaultTimeout.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

// partialReader yields data once, then fails.
type partialReader struct {
	data string
	done bool
}

func (r *partialReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, errors.New("stream reset")
	}
	r.done = true
	return copy(p, r.data), nil
}

func TestExecuteErrorBodyReadFailureKeepsPartialBody(t *testing.T) {
	var calls int32
	transport := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Header:     make(http.Header),
			Body:       io.NopCloser(&partialReader{data: "partial"}),
			Request:    r,
		}, nil
	})
	c := NewBuilder(&fakeLogger{}).WithTransport(transport).WithRetryDelay(time.Millisecond).Build()

	_, err := c.Get(context.Background(), &Request{URL: "http://example.invalid/repo", RetryCount: 2})
	require.Error(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.True(t, IsHTTPStatusError(err, http.StatusServiceUnavailable))
	assert.False(t, IsErrorType(err, NetworkError))
	body, ok := BodyOf(err)
	require.True(t, ok)
	assert.Equal(t, "partial", string(body))
}

func TestExecuteRawLeavesBodyUnread(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Custom", "yes")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(&fakeLogger{}, 0)
	resp, err := c.Delete(context.Background(), &Request{URL: srv.URL, Raw: true})
	require.NoError(t, err)
	require.NotNil(t, resp.Raw)
	defer resp.Raw.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.Raw.StatusCode)
	assert.Equal(t, "yes", resp.Headers.Get("X-Custom"))
	assert.Nil(t, resp.Payload)
	assert.Nil(t, resp.Body)
	assert.Error(t, resp.Decode(&struct{}{}))
}

func TestExecuteRawBodyIsReadable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "not json at all")
	}))
	defer srv.Close()

	c := newTestClient(&fakeLogger{}, 0)
	resp, err := c.Get(context.Background(), &Request{URL: srv.URL, Raw: true})
	require.NoError(t, err)
	defer resp.Raw.Body.Close()

	data, err := io.ReadAll(resp.Raw.Body)
	require.NoError(t, err)
	assert.Equal(t, "not json at all", string(data))
}

func TestExecutePlainText(t *testing.T) {
	var gotAccept, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get(HeaderAccept)
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		_, _ = io.WriteString(w, "# README\nhello")
	}))
	defer srv.Close()

	c := newTestClient(&fakeLogger{}, 0)
	resp, err := c.Post(context.Background(), &Request{URL: srv.URL, PlainText: true, Body: "raw text"})
	require.NoError(t, err)

	assert.Equal(t, ContentTypeText, gotAccept)
	assert.Equal(t, "raw text", gotBody)
	assert.Equal(t, "# README\nhello", resp.Payload)
	assert.Equal(t, "# README\nhello", resp.Text())
}

func TestExecuteEmptyJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(&fakeLogger{}, 0)
	resp, err := c.Get(context.Background(), &Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Nil(t, resp.Payload)
	assert.Error(t, resp.Decode(&map[string]any{}))
}

func TestExecuteInvalidJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "<html>sign in</html>")
	}))
	defer srv.Close()

	c := newTestClient(&fakeLogger{}, 0)
	_, err := c.Get(context.Background(), &Request{URL: srv.URL})
	require.Error(t, err)
	var ce ClientError
	assert.False(t, errors.As(err, &ce))
}

func TestExecuteHeaderComposition(t *testing.T) {
	t.Run("explicit headers win", func(t *testing.T) {
		var got http.Header
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Clone()
		}))
		defer srv.Close()

		c := NewBuilder(&fakeLogger{}).
			WithDefaultHeader("X-Team", "platform").
			WithDefaultHeaders(map[string]string{
				HeaderAccept: "application/xml",
				"X-Tenant":   "contoso",
				"X-Extra":    "default",
			}).
			Build()

		_, err := c.Get(context.Background(), &Request{
			URL:   srv.URL,
			Token: "pat",
			Headers: map[string]string{
				HeaderAuthorization: "Bearer override",
				"X-Extra":           "1",
			},
		})
		require.NoError(t, err)

		assert.Equal(t, "platform", got.Get("X-Team"))
		assert.Equal(t, "contoso", got.Get("X-Tenant"))
		assert.Equal(t, ContentTypeJSON, got.Get(HeaderAccept))
		assert.Equal(t, "Bearer override", got.Get(HeaderAuthorization))
		assert.Equal(t, "1", got.Get("X-Extra"))
		assert.NotEmpty(t, got.Get(HeaderXRequestID))
	})

	t.Run("no authorization without token", func(t *testing.T) {
		var got http.Header
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Clone()
		}))
		defer srv.Close()

		c := newTestClient(&fakeLogger{}, 0)
		_, err := c.Get(context.Background(), &Request{URL: srv.URL})
		require.NoError(t, err)

		_, present := got[HeaderAuthorization]
		assert.False(t, present)
	})

	t.Run("trace id from context is reused across attempts", func(t *testing.T) {
		var ids []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ids = append(ids, r.Header.Get(HeaderXRequestID))
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		c := newTestClient(&fakeLogger{}, time.Millisecond)
		ctx := WithTraceID(context.Background(), "trace-abc")
		_, err := c.Get(ctx, &Request{URL: srv.URL, RetryCount: 1})
		require.Error(t, err)
		assert.Equal(t, []string{"trace-abc", "trace-abc"}, ids)
	})
}

func TestExecuteValidation(t *testing.T) {
	c := newTestClient(&fakeLogger{}, 0)

	_, err := c.Execute(context.Background(), nil)
	assert.True(t, IsErrorType(err, ValidationError))

	_, err = c.Do(context.Background(), http.MethodGet, nil)
	assert.True(t, IsErrorType(err, ValidationError))

	_, err = c.Execute(context.Background(), &Request{URL: "http://localhost", RetryCount: -1})
	assert.True(t, IsErrorType(err, ValidationError))
}

func TestExecuteBodyEncodingErrorPropagates(t *testing.T) {
	var calls int32
	transport := roundTripperFunc(func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("unreachable")
	})
	c := NewBuilder(&fakeLogger{}).WithTransport(transport).Build()

	_, err := c.Post(context.Background(), &Request{URL: "http://localhost", Body: make(chan int)})
	require.Error(t, err)
	var ce ClientError
	assert.False(t, errors.As(err, &ce))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestExecuteCancelledDuringRetryDelay(t *testing.T) {
	srv, calls := newCountingServer(t, []int{http.StatusServiceUnavailable}, []string{""})
	c := newTestClient(&fakeLogger{}, 10*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Get(ctx, &Request{URL: srv.URL, RetryCount: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecuteInterceptors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Header.Get("X-Signed"))
	}))
	defer srv.Close()

	t.Run("request interceptor mutates the request", func(t *testing.T) {
		c := NewBuilder(&fakeLogger{}).
			WithRequestInterceptor(func(_ context.Context, r *http.Request) error {
				r.Header.Set("X-Signed", "yes")
				return nil
			}).
			Build()

		resp, err := c.Get(context.Background(), &Request{URL: srv.URL, PlainText: true})
		require.NoError(t, err)
		assert.Equal(t, "yes", resp.Payload)
	})

	t.Run("request interceptor failure", func(t *testing.T) {
		c := NewBuilder(&fakeLogger{}).
			WithRequestInterceptor(func(context.Context, *http.Request) error {
				return errors.New("no signing key")
			}).
			Build()

		_, err := c.Get(context.Background(), &Request{URL: srv.URL, RetryCount: 2})
		require.Error(t, err)
		assert.True(t, IsErrorType(err, InterceptorError))
		assert.True(t, strings.Contains(err.Error(), "no signing key"))
	})

	t.Run("response interceptor failure", func(t *testing.T) {
		c := NewBuilder(&fakeLogger{}).
			WithResponseInterceptor(func(context.Context, *http.Request, *http.Response) error {
				return errors.New("unexpected content")
			}).
			Build()

		_, err := c.Get(context.Background(), &Request{URL: srv.URL})
		require.Error(t, err)
		assert.True(t, IsErrorType(err, InterceptorError))
	})
}

func TestDoOverridesMethodWithoutMutatingRequest(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
	}))
	defer srv.Close()

	c := newTestClient(&fakeLogger{}, 0)
	req := &Request{URL: srv.URL, Method: http.MethodGet}
	_, err := c.Patch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, method)
	assert.Equal(t, http.MethodGet, req.Method)
}

func TestExecuteLogsSuccessLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	log := &fakeLogger{}
	c := newTestClient(log, 0)
	_, err := c.Get(context.Background(), &Request{URL: srv.URL})
	require.NoError(t, err)

	infoEvents := log.eventsByLevel("info")
	require.Len(t, infoEvents, 2)
	assert.Equal(t, testRestClientRequest, infoEvents[0].message)
	assert.Equal(t, testRestClientResponse, infoEvents[1].message)
	assert.Equal(t, infoEvents[0].fields["request_id"], infoEvents[1].fields["request_id"])
}

func TestExecuteRateLimitSpacesAttempts(t *testing.T) {
	srv, calls := newCountingServer(t, []int{http.StatusOK}, []string{`{}`})

	c := NewBuilder(&fakeLogger{}).WithRateLimit(10, 1).Build()
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background(), &Request{URL: srv.URL})
		require.NoError(t, err)
	}

	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestExecuteRateLimitHonorsContext(t *testing.T) {
	srv, calls := newCountingServer(t, []int{http.StatusOK}, []string{`{}`})

	c := NewBuilder(&fakeLogger{}).WithRateLimit(0.01, 1).Build()
	_, err := c.Get(context.Background(), &Request{URL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Get(ctx, &Request{URL: srv.URL})
	require.Error(t, err)
	assert.False(t, IsErrorType(err, HTTPError))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}
