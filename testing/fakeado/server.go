// Package fakeado runs an in-memory Azure DevOps Git REST API for tests.
// It serves one repository and understands the routes used by package
// repos. Failures can be injected per route to exercise retries.
package fakeado

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/azrepos/httpclient"
	"github.com/gaborage/azrepos/logger"
	"github.com/gaborage/azrepos/repos"
)

const serviceName = "fakeado"

// Options configures the fake server.
type Options struct {
	Organization  string
	Project       string
	Repository    string
	DefaultBranch string
	// Token, when set, is the only personal access token accepted.
	Token string
	// TracerProvider enables server spans through otelecho.
	TracerProvider trace.TracerProvider
	Logger         logger.Logger
}

// Call records one request received by the server.
type Call struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	Traceparent   string
	RequestID     string
	Body          []byte
}

type failure struct {
	status int
	body   string
}

type failureQueue struct {
	method  string
	suffix  string
	pending []failure
}

// Server is a running fake. Close it when done.
type Server struct {
	opts Options
	echo *echo.Echo
	http *httptest.Server

	mu        sync.Mutex
	repo      repos.Repository
	prs       map[int]*repos.PullRequest
	labels    map[int][]repos.Label
	threads   map[int][]repos.Thread
	files     map[string]string
	nextPR    int
	nextID    int
	failures  []*failureQueue
	calls     []Call
	clockFunc func() time.Time
}

// New starts a fake server. Empty coordinates default to
// contoso/platform/service-api on branch main.
func New(opts Options) *Server {
	if opts.Organization == "" {
		opts.Organization = "contoso"
	}
	if opts.Project == "" {
		opts.Project = "platform"
	}
	if opts.Repository == "" {
		opts.Repository = "service-api"
	}
	if opts.DefaultBranch == "" {
		opts.DefaultBranch = "refs/heads/main"
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	s := &Server{
		opts:      opts,
		prs:       make(map[int]*repos.PullRequest),
		labels:    make(map[int][]repos.Label),
		threads:   make(map[int][]repos.Thread),
		files:     make(map[string]string),
		nextPR:    1,
		nextID:    1,
		clockFunc: time.Now,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler
	if opts.TracerProvider != nil {
		e.Use(otelecho.Middleware(serviceName,
			otelecho.WithTracerProvider(opts.TracerProvider),
			otelecho.WithPropagators(propagation.TraceContext{}),
		))
	}
	e.Use(s.record, s.injectFailures, s.requireAPIVersion, s.authenticate)
	s.routes(e)
	s.echo = e

	s.http = httptest.NewServer(e)
	s.repo = repos.Repository{
		ID:            "2f3d611a-f012-4b39-b157-8db63f380226",
		Name:          opts.Repository,
		DefaultBranch: opts.DefaultBranch,
		RemoteURL:     s.CollectionURL() + "/" + opts.Project + "/_git/" + opts.Repository,
		WebURL:        s.CollectionURL() + "/" + opts.Project + "/_git/" + opts.Repository,
		Size:          1024,
		Project:       &repos.ProjectRef{ID: "eb6e4656-77fc-42a1-9181-4c6d8e9da5d1", Name: opts.Project},
	}
	return s
}

// Close shuts the server down.
func (s *Server) Close() {
	s.http.Close()
}

// URL is the server root.
func (s *Server) URL() string {
	return s.http.URL
}

// CollectionURL is the organization root, suitable for
// repos.Options.CollectionURL.
func (s *Server) CollectionURL() string {
	return s.http.URL + "/" + s.opts.Organization
}

// ClientOptions returns repos options pointing at the fake.
func (s *Server) ClientOptions() repos.Options {
	return repos.Options{
		Organization:  s.opts.Organization,
		Project:       s.opts.Project,
		CollectionURL: s.CollectionURL(),
		Repository:    s.opts.Repository,
		Token:         s.opts.Token,
	}
}

// AddPullRequest seeds a pull request and returns its ID.
func (s *Server) AddPullRequest(pr repos.PullRequest) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storePullRequest(pr).PullRequestID
}

// AddLabel seeds a label on a pull request.
func (s *Server) AddLabel(prID int, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels[prID] = append(s.labels[prID], s.newLabel(name))
}

// PutFile stores content at path for version. An empty version is the
// default branch.
func (s *Server) PutFile(path, version, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[fileKey(path, s.branch(version))] = content
}

// FailNext makes the next len(statuses) requests matching method and a
// path suffix fail with the given statuses, in order. When several
// suffixes match a request, the longest one is consumed first.
func (s *Server) FailNext(method, pathSuffix string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var q *failureQueue
	for _, existing := range s.failures {
		if existing.method == method && existing.suffix == pathSuffix {
			q = existing
			break
		}
	}
	if q == nil {
		q = &failureQueue{method: method, suffix: pathSuffix}
		s.failures = append(s.failures, q)
	}
	for _, st := range statuses {
		q.pending = append(q.pending, failure{status: st, body: http.StatusText(st)})
	}
}

// Calls returns every request received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount counts received requests with method whose path ends in suffix.
func (s *Server) CallCount(method, pathSuffix string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method && strings.HasSuffix(c.Path, pathSuffix) {
			n++
		}
	}
	return n
}

// PullRequest returns a copy of the stored pull request.
func (s *Server) PullRequest(id int) (repos.PullRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pr, ok := s.prs[id]
	if !ok {
		return repos.PullRequest{}, false
	}
	return *pr, true
}

// Labels returns the labels stored for a pull request.
func (s *Server) Labels(prID int) []repos.Label {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repos.Label(nil), s.labels[prID]...)
}

// Threads returns the threads stored for a pull request.
func (s *Server) Threads(prID int) []repos.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repos.Thread(nil), s.threads[prID]...)
}

func (s *Server) storePullRequest(pr repos.PullRequest) *repos.PullRequest {
	if pr.PullRequestID == 0 {
		pr.PullRequestID = s.nextPR
	}
	if pr.PullRequestID >= s.nextPR {
		s.nextPR = pr.PullRequestID + 1
	}
	if pr.Status == "" {
		pr.Status = string(repos.StatusActive)
	}
	if pr.CreationDate.IsZero() {
		pr.CreationDate = s.clockFunc().UTC()
	}
	pr.URL = fmt.Sprintf("%s/%s/_apis/git/repositories/%s/pullRequests/%d",
		s.CollectionURL(), s.opts.Project, s.repo.ID, pr.PullRequestID)
	stored := pr
	s.prs[pr.PullRequestID] = &stored
	return &stored
}

func (s *Server) newLabel(name string) repos.Label {
	id := s.nextID
	s.nextID++
	return repos.Label{ID: fmt.Sprintf("label-%d", id), Name: name, Active: true}
}

func (s *Server) branch(version string) string {
	if version == "" {
		return s.opts.DefaultBranch
	}
	if !strings.HasPrefix(version, "refs/") {
		return "refs/heads/" + version
	}
	return version
}

func fileKey(path, branch string) string {
	return branch + ":" + "/" + strings.TrimLeft(path, "/")
}

// record is the outermost middleware; it stores the call before any
// failure is injected.
func (s *Server) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		var body []byte
		if req.Body != nil {
			body, _ = readAndRestore(req)
		}
		s.mu.Lock()
		s.calls = append(s.calls, Call{
			Method:        req.Method,
			Path:          req.URL.Path,
			Query:         req.URL.RawQuery,
			Authorization: req.Header.Get(httpclient.HeaderAuthorization),
			Traceparent:   req.Header.Get("traceparent"),
			RequestID:     req.Header.Get(httpclient.HeaderXRequestID),
			Body:          body,
		})
		s.mu.Unlock()

		err := next(c)
		s.opts.Logger.Debug().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", c.Response().Status).
			Msg("fakeado request")
		return err
	}
}

func (s *Server) injectFailures(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		s.mu.Lock()
		var match *failureQueue
		for _, q := range s.failures {
			if q.method != req.Method || !strings.HasSuffix(req.URL.Path, q.suffix) || len(q.pending) == 0 {
				continue
			}
			if match == nil || len(q.suffix) > len(match.suffix) {
				match = q
			}
		}
		var injected *failure
		if match != nil {
			f := match.pending[0]
			injected = &f
			match.pending = match.pending[1:]
		}
		s.mu.Unlock()

		if injected != nil {
			return c.String(injected.status, injected.body)
		}
		return next(c)
	}
}

func (s *Server) requireAPIVersion(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.QueryParam("api-version") == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No api-version was supplied for the request.")
		}
		return next(c)
	}
}

func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.opts.Token == "" {
			return next(c)
		}
		if c.Request().Header.Get(httpclient.HeaderAuthorization) != httpclient.BasicAuthHeader(s.opts.Token) {
			return echo.NewHTTPError(http.StatusUnauthorized, "Access denied: the personal access token is invalid.")
		}
		return next(c)
	}
}

// errorHandler renders errors the way Azure DevOps does: a JSON object with
// a message field.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	message := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		message = fmt.Sprint(he.Message)
	}
	_ = c.JSON(status, map[string]any{
		"$id":     "1",
		"message": message,
		"typeKey": http.StatusText(status),
	})
}
