package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/gaborage/azrepos/httpclient"
)

// MockExecutor provides a testify-based mock implementation of httpclient.Client.
// The method helpers (Get, Post, ...) record their own calls, so expectations
// must target the method the code under test actually uses.
//
// Example usage:
//
//	exec := &mocks.MockExecutor{}
//	exec.On("Execute", mock.Anything, mock.MatchedBy(func(r *httpclient.Request) bool {
//		return r.Method == http.MethodPost && strings.HasSuffix(r.URL, "/labels?api-version=7.1")
//	})).Return(fixtures.JSONResponse(t, http.StatusOK, label), nil)
type MockExecutor struct {
	mock.Mock
}

var _ httpclient.Client = (*MockExecutor)(nil)

func (m *MockExecutor) result(arguments mock.Arguments) (*httpclient.Response, error) {
	if arguments.Get(0) == nil {
		return nil, arguments.Error(1)
	}
	return arguments.Get(0).(*httpclient.Response), arguments.Error(1)
}

// Execute implements httpclient.Client
func (m *MockExecutor) Execute(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	return m.result(m.Called(ctx, req))
}

// Get implements httpclient.Client
func (m *MockExecutor) Get(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	return m.result(m.Called(ctx, req))
}

// Post implements httpclient.Client
func (m *MockExecutor) Post(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	return m.result(m.Called(ctx, req))
}

// Put implements httpclient.Client
func (m *MockExecutor) Put(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	return m.result(m.Called(ctx, req))
}

// Patch implements httpclient.Client
func (m *MockExecutor) Patch(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	return m.result(m.Called(ctx, req))
}

// Delete implements httpclient.Client
func (m *MockExecutor) Delete(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	return m.result(m.Called(ctx, req))
}

// Do implements httpclient.Client
func (m *MockExecutor) Do(ctx context.Context, method string, req *httpclient.Request) (*httpclient.Response, error) {
	return m.result(m.Called(ctx, method, req))
}

// ExpectRequest registers an Execute expectation matching method and a URL
// predicate.
func (m *MockExecutor) ExpectRequest(method string, matchURL func(string) bool) *mock.Call {
	return m.On("Execute", mock.Anything, mock.MatchedBy(func(r *httpclient.Request) bool {
		return r != nil && r.Method == method && matchURL(r.URL)
	}))
}

// Requests returns every request passed to Execute, in call order.
func (m *MockExecutor) Requests() []*httpclient.Request {
	var out []*httpclient.Request
	for _, call := range m.Calls {
		if call.Method != "Execute" {
			continue
		}
		if req, ok := call.Arguments.Get(1).(*httpclient.Request); ok {
			out = append(out, req)
		}
	}
	return out
}
