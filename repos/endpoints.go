package repos

import (
	"maps"
	nethttp "net/http"
	"net/url"
	"strings"
)

// Operation names one row of the endpoint table.
type Operation string

const (
	OpGetRepository     Operation = "GetRepository"
	OpListPullRequests  Operation = "ListPullRequests"
	OpGetPullRequest    Operation = "GetPullRequest"
	OpCreatePullRequest Operation = "CreatePullRequest"
	OpSetDraft          Operation = "SetDraft"
	OpListLabels        Operation = "ListLabels"
	OpAddLabel          Operation = "AddLabel"
	OpRemoveLabel       Operation = "RemoveLabel"
	OpListThreads       Operation = "ListThreads"
	OpAddComment        Operation = "AddComment"
	OpGetFileContent    Operation = "GetFileContent"
)

// Endpoint describes how an operation maps onto the REST API. Path is
// relative to the repository URL; {id} and {name} are replaced with
// path-escaped arguments.
type Endpoint struct {
	Method string
	Path   string
	// PlainText negotiates text/plain and yields the body as a string.
	PlainText bool
	// Raw skips response parsing.
	Raw bool
}

const (
	pathPullRequests = "/pullrequests"
	pathPullRequest  = "/pullrequests/{id}"
	pathLabels       = "/pullRequests/{id}/labels"
	pathThreads      = "/pullRequests/{id}/threads"
)

var endpoints = map[Operation]Endpoint{
	OpGetRepository:     {Method: nethttp.MethodGet, Path: ""},
	OpListPullRequests:  {Method: nethttp.MethodGet, Path: pathPullRequests},
	OpGetPullRequest:    {Method: nethttp.MethodGet, Path: pathPullRequest},
	OpCreatePullRequest: {Method: nethttp.MethodPost, Path: pathPullRequests},
	OpSetDraft:          {Method: nethttp.MethodPatch, Path: pathPullRequest},
	OpListLabels:        {Method: nethttp.MethodGet, Path: pathLabels},
	OpAddLabel:          {Method: nethttp.MethodPost, Path: pathLabels},
	OpRemoveLabel:       {Method: nethttp.MethodDelete, Path: pathLabels + "/{name}", Raw: true},
	OpListThreads:       {Method: nethttp.MethodGet, Path: pathThreads},
	OpAddComment:        {Method: nethttp.MethodPost, Path: pathThreads},
	OpGetFileContent:    {Method: nethttp.MethodGet, Path: "/items", PlainText: true},
}

// EndpointFor returns the table entry of op.
func EndpointFor(op Operation) (Endpoint, bool) {
	ep, ok := endpoints[op]
	return ep, ok
}

// Operations lists every operation in table order.
func Operations() []Operation {
	return []Operation{
		OpGetRepository, OpListPullRequests, OpGetPullRequest, OpCreatePullRequest, OpSetDraft,
		OpListLabels, OpAddLabel, OpRemoveLabel, OpListThreads, OpAddComment, OpGetFileContent,
	}
}

// pathArgs fills the {placeholders} of an endpoint path.
type pathArgs map[string]string

func (e Endpoint) resolve(base string, args pathArgs, query url.Values, apiVersion string) string {
	path := e.Path
	for k, v := range args {
		path = strings.ReplaceAll(path, "{"+k+"}", url.PathEscape(v))
	}

	q := url.Values{}
	maps.Copy(q, query)
	q.Set("api-version", apiVersion)
	return base + path + "?" + q.Encode()
}
