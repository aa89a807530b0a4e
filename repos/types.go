package repos

import "time"

// PullRequestStatus filters ListPullRequests.
type PullRequestStatus string

const (
	StatusActive    PullRequestStatus = "active"
	StatusAbandoned PullRequestStatus = "abandoned"
	StatusCompleted PullRequestStatus = "completed"
	StatusAll       PullRequestStatus = "all"
)

// Valid reports whether s is a status the service accepts.
func (s PullRequestStatus) Valid() bool {
	switch s {
	case StatusActive, StatusAbandoned, StatusCompleted, StatusAll:
		return true
	}
	return false
}

// ProjectRef is the project a repository belongs to.
type ProjectRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Repository is the metadata of a Git repository.
type Repository struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	IsFork        bool        `json:"isFork"`
	DefaultBranch string      `json:"defaultBranch"`
	RemoteURL     string      `json:"remoteUrl"`
	WebURL        string      `json:"webUrl"`
	Size          int64       `json:"size"`
	Project       *ProjectRef `json:"project,omitempty"`
}

// IdentityRef identifies a user.
type IdentityRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	UniqueName  string `json:"uniqueName"`
}

// PullRequest is a Git pull request.
type PullRequest struct {
	PullRequestID int         `json:"pullRequestId"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Status        string      `json:"status"`
	SourceRefName string      `json:"sourceRefName"`
	TargetRefName string      `json:"targetRefName"`
	IsDraft       bool        `json:"isDraft"`
	MergeStatus   string      `json:"mergeStatus,omitempty"`
	CreatedBy     IdentityRef `json:"createdBy"`
	CreationDate  time.Time   `json:"creationDate"`
	URL           string      `json:"url"`
	Labels        []Label     `json:"labels,omitempty"`
}

// Label is a tag attached to a pull request.
type Label struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	URL    string `json:"url,omitempty"`
}

// Comment is one entry in a thread.
type Comment struct {
	ID              int         `json:"id"`
	ParentCommentID int         `json:"parentCommentId"`
	Content         string      `json:"content"`
	CommentType     string      `json:"commentType"`
	Author          IdentityRef `json:"author"`
	PublishedDate   time.Time   `json:"publishedDate"`
}

// Thread is a pull-request comment thread. The service reports Status by
// name ("active", "fixed", ...).
type Thread struct {
	ID            int       `json:"id"`
	Status        string    `json:"status"`
	Comments      []Comment `json:"comments"`
	PublishedDate time.Time `json:"publishedDate"`
	IsDeleted     bool      `json:"isDeleted"`
}

// PullRequestDetails bundles a pull request with its labels and threads.
type PullRequestDetails struct {
	PullRequest *PullRequest `json:"pullRequest"`
	Labels      []Label      `json:"labels"`
	Threads     []Thread     `json:"threads"`
}

// CreatePullRequestInput is the body of CreatePullRequest. Ref names are
// full refs such as "refs/heads/feature".
type CreatePullRequestInput struct {
	SourceRefName string `json:"sourceRefName" validate:"required"`
	TargetRefName string `json:"targetRefName" validate:"required"`
	Title         string `json:"title" validate:"required"`
	Description   string `json:"description"`
	IsDraft       bool   `json:"isDraft"`
}

// listResponse is the envelope of every collection endpoint.
type listResponse[T any] struct {
	Count int `json:"count"`
	Value []T `json:"value"`
}

// Wire shapes of request bodies.

type labelBody struct {
	Name string `json:"name"`
}

type draftBody struct {
	IsDraft bool `json:"isDraft"`
}

const (
	commentTypeText    = 1
	threadStatusActive = 1
)

type newComment struct {
	ParentCommentID int    `json:"parentCommentId"`
	Content         string `json:"content"`
	CommentType     int    `json:"commentType"`
}

type threadBody struct {
	Comments []newComment `json:"comments"`
	Status   int          `json:"status"`
}

func newThreadBody(content string) threadBody {
	return threadBody{
		Comments: []newComment{{ParentCommentID: 0, Content: content, CommentType: commentTypeText}},
		Status:   threadStatusActive,
	}
}
