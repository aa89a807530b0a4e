// Package repos is the Azure DevOps Git resource client: repositories, pull
// requests, labels, comment threads and file contents. Every call is a row
// of the endpoint table executed through httpclient.
package repos

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/gaborage/azrepos/config"
	"github.com/gaborage/azrepos/httpclient"
)

const (
	// DefaultHost is the cloud service root; the organization is appended.
	DefaultHost = "https://dev.azure.com"
	// DefaultAPIVersion is sent as api-version when Options leaves it empty.
	DefaultAPIVersion = "7.1"

	tracerName = "azrepos/repos"
)

var (
	// ErrInvalidPullRequestID is returned for a non-positive pull request ID.
	ErrInvalidPullRequestID = errors.New("repos: pull request id must be positive")
	// ErrInvalidStatus is returned by ListPullRequests for an unknown status.
	ErrInvalidStatus = errors.New("repos: invalid pull request status")
	// ErrUnexpectedPayload is returned when a 2xx body does not have the
	// expected shape.
	ErrUnexpectedPayload = errors.New("repos: unexpected response payload")
)

// Options identifies the repository and the credential. Token is the raw
// personal access token; the executor encodes it on every request.
type Options struct {
	Organization  string `validate:"required_without=CollectionURL"`
	Project       string `validate:"required"`
	CollectionURL string `validate:"omitempty,url"`
	Repository    string `validate:"required"`
	Token         string
	APIVersion    string
	// RetryCount is applied to every call.
	RetryCount int `validate:"gte=0"`
	// TracerProvider records client-level spans. Nil means the executor's
	// provider when it exposes one, else the global provider.
	TracerProvider trace.TracerProvider `validate:"-"`
}

// tracerSource is implemented by executors built with httpclient.NewBuilder.
type tracerSource interface {
	TracerProvider() trace.TracerProvider
}

// Client calls the repository endpoints. It is safe for concurrent use.
type Client struct {
	exec    httpclient.Client
	opts    Options
	baseURL string
	tracer  trace.Tracer
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// New creates a Client over exec.
func New(exec httpclient.Client, opts Options) (*Client, error) {
	if exec == nil {
		return nil, errors.New("repos: executor is nil")
	}
	if err := validate.Struct(opts); err != nil {
		return nil, toValidationError(err)
	}
	if opts.APIVersion == "" {
		opts.APIVersion = DefaultAPIVersion
	}
	tp := opts.TracerProvider
	if tp == nil {
		if src, ok := exec.(tracerSource); ok {
			tp = src.TracerProvider()
		} else {
			tp = otel.GetTracerProvider()
		}
	}
	return &Client{exec: exec, opts: opts, baseURL: baseURL(opts), tracer: tp.Tracer(tracerName)}, nil
}

// NewFromConfig creates a Client from the azure and client.retry sections.
func NewFromConfig(exec httpclient.Client, cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("repos: config is nil")
	}
	return New(exec, Options{
		Organization:  cfg.Azure.Organization,
		Project:       cfg.Azure.Project,
		CollectionURL: cfg.Azure.CollectionURL,
		Repository:    cfg.Azure.Repository,
		Token:         cfg.Azure.Token,
		APIVersion:    cfg.Azure.APIVersion,
		RetryCount:    cfg.Client.Retry.Count,
	})
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return httpclient.NewValidationError(fmt.Sprintf("option failed %q check", fe.Tag()), fe.Field())
	}
	return err
}

// baseURL builds <collection>/<project>/_apis/git/repositories/<repo>.
func baseURL(opts Options) string {
	collection := strings.TrimRight(opts.CollectionURL, "/")
	if collection == "" {
		collection = DefaultHost + "/" + url.PathEscape(opts.Organization)
	}
	return collection + "/" + url.PathEscape(opts.Project) +
		"/_apis/git/repositories/" + url.PathEscape(opts.Repository)
}

// BaseURL returns the repository URL every endpoint path is relative to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// call executes one endpoint. Errors keep the executor's error chain.
func (c *Client) call(ctx context.Context, op Operation, args pathArgs, query url.Values, body any) (*httpclient.Response, error) {
	ep, ok := endpoints[op]
	if !ok {
		return nil, fmt.Errorf("repos: unknown operation %q", op)
	}

	resp, err := c.exec.Execute(ctx, &httpclient.Request{
		URL:        ep.resolve(c.baseURL, args, query, c.opts.APIVersion),
		Method:     ep.Method,
		Token:      c.opts.Token,
		Body:       body,
		PlainText:  ep.PlainText,
		Raw:        ep.Raw,
		RetryCount: c.opts.RetryCount,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resp, nil
}

func decode[T any](op Operation, resp *httpclient.Response) (T, error) {
	var out T
	if err := resp.Decode(&out); err != nil {
		return out, fmt.Errorf("%s: %w: %w", op, ErrUnexpectedPayload, err)
	}
	return out, nil
}

func callDecode[T any](ctx context.Context, c *Client, op Operation, args pathArgs, query url.Values, body any) (T, error) {
	resp, err := c.call(ctx, op, args, query, body)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode[T](op, resp)
}

func idArgs(id int) (pathArgs, error) {
	if id <= 0 {
		return nil, ErrInvalidPullRequestID
	}
	return pathArgs{"id": strconv.Itoa(id)}, nil
}

// GetRepository returns the repository metadata.
func (c *Client) GetRepository(ctx context.Context) (*Repository, error) {
	return callDecode[*Repository](ctx, c, OpGetRepository, nil, nil, nil)
}

// ListPullRequests returns the first page of pull requests with status.
// An empty status uses the service default (active).
func (c *Client) ListPullRequests(ctx context.Context, status PullRequestStatus) ([]PullRequest, error) {
	query := url.Values{}
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
		}
		query.Set("searchCriteria.status", string(status))
	}
	list, err := callDecode[listResponse[PullRequest]](ctx, c, OpListPullRequests, nil, query, nil)
	return list.Value, err
}

func (c *Client) GetPullRequest(ctx context.Context, id int) (*PullRequest, error) {
	args, err := idArgs(id)
	if err != nil {
		return nil, err
	}
	return callDecode[*PullRequest](ctx, c, OpGetPullRequest, args, nil, nil)
}

// CreatePullRequest opens a pull request. Draft pull requests are created
// with in.IsDraft.
func (c *Client) CreatePullRequest(ctx context.Context, in CreatePullRequestInput) (*PullRequest, error) {
	if err := validate.Struct(in); err != nil {
		return nil, toValidationError(err)
	}
	return callDecode[*PullRequest](ctx, c, OpCreatePullRequest, nil, nil, in)
}

// SetDraft publishes (draft=false) or converts back to draft.
func (c *Client) SetDraft(ctx context.Context, id int, draft bool) (*PullRequest, error) {
	args, err := idArgs(id)
	if err != nil {
		return nil, err
	}
	return callDecode[*PullRequest](ctx, c, OpSetDraft, args, nil, draftBody{IsDraft: draft})
}

func (c *Client) ListLabels(ctx context.Context, id int) ([]Label, error) {
	args, err := idArgs(id)
	if err != nil {
		return nil, err
	}
	list, err := callDecode[listResponse[Label]](ctx, c, OpListLabels, args, nil, nil)
	return list.Value, err
}

// AddLabel attaches name to the pull request, creating the label if needed.
func (c *Client) AddLabel(ctx context.Context, id int, name string) (*Label, error) {
	args, err := idArgs(id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, httpclient.NewValidationError("label name is empty", "name")
	}
	return callDecode[*Label](ctx, c, OpAddLabel, args, nil, labelBody{Name: name})
}

// RemoveLabel detaches a label. The response body is not parsed.
func (c *Client) RemoveLabel(ctx context.Context, id int, name string) error {
	args, err := idArgs(id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return httpclient.NewValidationError("label name is empty", "name")
	}
	args["name"] = name

	resp, err := c.call(ctx, OpRemoveLabel, args, nil, nil)
	if err != nil {
		return err
	}
	if resp.Raw != nil {
		_ = resp.Raw.Body.Close()
	}
	return nil
}

func (c *Client) ListThreads(ctx context.Context, id int) ([]Thread, error) {
	args, err := idArgs(id)
	if err != nil {
		return nil, err
	}
	list, err := callDecode[listResponse[Thread]](ctx, c, OpListThreads, args, nil, nil)
	return list.Value, err
}

// AddComment starts a new active thread holding one text comment.
func (c *Client) AddComment(ctx context.Context, id int, content string) (*Thread, error) {
	args, err := idArgs(id)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, httpclient.NewValidationError("comment content is empty", "content")
	}
	return callDecode[*Thread](ctx, c, OpAddComment, args, nil, newThreadBody(content))
}

// GetFileContent returns the raw text of the file at path. version is a
// branch name; empty means the default branch.
func (c *Client) GetFileContent(ctx context.Context, path, version string) (string, error) {
	if path == "" {
		return "", httpclient.NewValidationError("file path is empty", "path")
	}
	query := url.Values{}
	query.Set("path", path)
	if version != "" {
		query.Set("versionDescriptor.version", version)
	}
	query.Set("includeContent", "true")

	resp, err := c.call(ctx, OpGetFileContent, nil, query, nil)
	if err != nil {
		return "", err
	}
	text, ok := resp.Payload.(string)
	if !ok {
		return "", fmt.Errorf("%s: %w", OpGetFileContent, ErrUnexpectedPayload)
	}
	return text, nil
}

// PullRequestDetails fetches the pull request, its labels and its threads
// concurrently. The first failure cancels the other calls.
func (c *Client) PullRequestDetails(ctx context.Context, id int) (*PullRequestDetails, error) {
	if id <= 0 {
		return nil, ErrInvalidPullRequestID
	}

	ctx, span := c.tracer.Start(ctx, "PullRequestDetails")
	defer span.End()
	span.SetAttributes(attribute.Int("azrepos.pull_request.id", id))

	details := &PullRequestDetails{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pr, err := c.GetPullRequest(gctx, id)
		details.PullRequest = pr
		return err
	})
	g.Go(func() error {
		labels, err := c.ListLabels(gctx, id)
		details.Labels = labels
		return err
	})
	g.Go(func() error {
		threads, err := c.ListThreads(gctx, id)
		details.Threads = threads
		return err
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return details, nil
}
