package fakeado

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/azrepos/httpclient"
	"github.com/gaborage/azrepos/repos"
)

const repositoryRoute = "/:org/:project/_apis/git/repositories/:repo"

type list[T any] struct {
	Count int `json:"count"`
	Value []T `json:"value"`
}

func newList[T any](items []T) list[T] {
	if items == nil {
		items = []T{}
	}
	return list[T]{Count: len(items), Value: items}
}

func (s *Server) routes(e *echo.Echo) {
	g := e.Group(repositoryRoute, s.matchRepository)
	g.GET("", s.getRepository)
	g.GET("/pullrequests", s.listPullRequests)
	g.POST("/pullrequests", s.createPullRequest)
	g.GET("/pullrequests/:id", s.getPullRequest)
	g.PATCH("/pullrequests/:id", s.updatePullRequest)
	g.GET("/pullRequests/:id/labels", s.listLabels)
	g.POST("/pullRequests/:id/labels", s.addLabel)
	g.DELETE("/pullRequests/:id/labels/:name", s.removeLabel)
	g.GET("/pullRequests/:id/threads", s.listThreads)
	g.POST("/pullRequests/:id/threads", s.createThread)
	g.GET("/items", s.getItem)
}

func (s *Server) matchRepository(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Param("org") != s.opts.Organization || c.Param("project") != s.opts.Project {
			return echo.NewHTTPError(http.StatusNotFound, "The project does not exist.")
		}
		if repo := c.Param("repo"); repo != s.opts.Repository && repo != s.repo.ID {
			return echo.NewHTTPError(http.StatusNotFound,
				fmt.Sprintf("TF401019: The Git repository with name or identifier %s does not exist.", repo))
		}
		return next(c)
	}
}

func (s *Server) getRepository(c echo.Context) error {
	s.mu.Lock()
	repo := s.repo
	s.mu.Unlock()
	return c.JSON(http.StatusOK, repo)
}

func (s *Server) listPullRequests(c echo.Context) error {
	status := c.QueryParam("searchCriteria.status")
	if status == "" {
		status = string(repos.StatusActive)
	}
	if !repos.PullRequestStatus(status).Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid searchCriteria.status value.")
	}

	s.mu.Lock()
	var out []repos.PullRequest
	for id := 1; id < s.nextPR; id++ {
		pr, ok := s.prs[id]
		if !ok || (status != string(repos.StatusAll) && pr.Status != status) {
			continue
		}
		out = append(out, *pr)
	}
	s.mu.Unlock()
	return c.JSON(http.StatusOK, newList(out))
}

func (s *Server) createPullRequest(c echo.Context) error {
	var in repos.CreatePullRequestInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "The request body is not valid JSON.")
	}
	if in.SourceRefName == "" || in.TargetRefName == "" || in.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sourceRefName, targetRefName and title are required.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pr := range s.prs {
		if pr.Status == string(repos.StatusActive) && pr.SourceRefName == in.SourceRefName && pr.TargetRefName == in.TargetRefName {
			return echo.NewHTTPError(http.StatusConflict, fmt.Sprintf(
				"TF401179: An active pull request for the source and target branch already exists (%d).", pr.PullRequestID))
		}
	}
	pr := s.storePullRequest(repos.PullRequest{
		Title:         in.Title,
		Description:   in.Description,
		SourceRefName: in.SourceRefName,
		TargetRefName: in.TargetRefName,
		IsDraft:       in.IsDraft,
		MergeStatus:   "queued",
		CreatedBy:     s.identity(),
	})
	return c.JSON(http.StatusCreated, pr)
}

func (s *Server) getPullRequest(c echo.Context) error {
	id, err := pullRequestID(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pr, ok := s.prs[id]
	if !ok {
		return notFound(id)
	}
	out := *pr
	out.Labels = append([]repos.Label(nil), s.labels[id]...)
	return c.JSON(http.StatusOK, out)
}

type pullRequestPatch struct {
	IsDraft *bool   `json:"isDraft"`
	Status  *string `json:"status"`
	Title   *string `json:"title"`
}

func (s *Server) updatePullRequest(c echo.Context) error {
	id, err := pullRequestID(c)
	if err != nil {
		return err
	}
	var patch pullRequestPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "The request body is not valid JSON.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	pr, ok := s.prs[id]
	if !ok {
		return notFound(id)
	}
	if patch.IsDraft != nil {
		pr.IsDraft = *patch.IsDraft
	}
	if patch.Status != nil {
		pr.Status = *patch.Status
	}
	if patch.Title != nil {
		pr.Title = *patch.Title
	}
	return c.JSON(http.StatusOK, *pr)
}

func (s *Server) listLabels(c echo.Context) error {
	id, err := s.existingPullRequest(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newList(s.Labels(id)))
}

func (s *Server) addLabel(c echo.Context) error {
	id, err := s.existingPullRequest(c)
	if err != nil {
		return err
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&body); err != nil || strings.TrimSpace(body.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "A label name is required.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.labels[id] {
		if strings.EqualFold(l.Name, body.Name) {
			return c.JSON(http.StatusOK, l)
		}
	}
	label := s.newLabel(body.Name)
	s.labels[id] = append(s.labels[id], label)
	return c.JSON(http.StatusOK, label)
}

func (s *Server) removeLabel(c echo.Context) error {
	id, err := s.existingPullRequest(c)
	if err != nil {
		return err
	}
	name, err := url.PathUnescape(c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid label name.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	labels := s.labels[id]
	for i, l := range labels {
		if strings.EqualFold(l.Name, name) {
			s.labels[id] = append(labels[:i:i], labels[i+1:]...)
			return c.NoContent(http.StatusNoContent)
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("The label %s does not exist on pull request %d.", name, id))
}

func (s *Server) listThreads(c echo.Context) error {
	id, err := s.existingPullRequest(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newList(s.Threads(id)))
}

type threadInput struct {
	Comments []struct {
		ParentCommentID int    `json:"parentCommentId"`
		Content         string `json:"content"`
		CommentType     int    `json:"commentType"`
	} `json:"comments"`
	Status int `json:"status"`
}

var threadStatusNames = map[int]string{1: "active", 2: "fixed", 3: "wontFix", 4: "closed", 5: "byDesign", 6: "pending"}

func (s *Server) createThread(c echo.Context) error {
	id, err := s.existingPullRequest(c)
	if err != nil {
		return err
	}
	var in threadInput
	if err := c.Bind(&in); err != nil || len(in.Comments) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "A thread needs at least one comment.")
	}
	status, ok := threadStatusNames[in.Status]
	if !ok {
		status = "unknown"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clockFunc().UTC()
	thread := repos.Thread{ID: s.nextID, Status: status, PublishedDate: now}
	s.nextID++
	for i, cm := range in.Comments {
		commentType := "text"
		if cm.CommentType != 1 {
			commentType = "system"
		}
		thread.Comments = append(thread.Comments, repos.Comment{
			ID:              i + 1,
			ParentCommentID: cm.ParentCommentID,
			Content:         cm.Content,
			CommentType:     commentType,
			Author:          s.identity(),
			PublishedDate:   now,
		})
	}
	s.threads[id] = append(s.threads[id], thread)
	return c.JSON(http.StatusOK, thread)
}

func (s *Server) getItem(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "The path parameter is required.")
	}

	s.mu.Lock()
	branch := s.branch(c.QueryParam("versionDescriptor.version"))
	content, ok := s.files[fileKey(path, branch)]
	s.mu.Unlock()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound,
			fmt.Sprintf("TF401174: The item '%s' could not be found in the repository at version %s.", path, branch))
	}

	if strings.Contains(c.Request().Header.Get(httpclient.HeaderAccept), httpclient.ContentTypeText) {
		return c.String(http.StatusOK, content)
	}
	return c.JSON(http.StatusOK, map[string]string{"path": "/" + strings.TrimLeft(path, "/"), "content": content})
}

func (s *Server) existingPullRequest(c echo.Context) (int, error) {
	id, err := pullRequestID(c)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	_, ok := s.prs[id]
	s.mu.Unlock()
	if !ok {
		return 0, notFound(id)
	}
	return id, nil
}

func (s *Server) identity() repos.IdentityRef {
	return repos.IdentityRef{ID: "d6245f20-2af8-44f4-9451-8107cb2767db", DisplayName: "Test User", UniqueName: "test.user@contoso.com"}
}

func pullRequestID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "The pull request id is not valid.")
	}
	return id, nil
}

func notFound(id int) error {
	return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("TF401180: The requested pull request %d was not found.", id))
}

func readAndRestore(req *http.Request) ([]byte, error) {
	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(body))
	return body, err
}
