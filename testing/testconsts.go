package testing

// Connection Constants
// Common Azure DevOps coordinates used across test files.
const (
	TestOrganization = "contoso"
	TestProject      = "platform"
	TestRepository   = "service-api"
	TestToken        = "test-pat"
	TestAPIVersion   = "7.1"
)

// Pull Request Constants
const (
	TestPullRequestID = 42
	TestSourceRef     = "refs/heads/feature/login"
	TestTargetRef     = "refs/heads/main"
	TestLabelName     = "bug"
	TestCommentText   = "Looks good to me"
)
