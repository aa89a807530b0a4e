package httpclient

import "encoding/base64"

const (
	HeaderAuthorization = "Authorization"
	HeaderAccept        = "Accept"
	HeaderContentType   = "Content-Type"

	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain"
)

// BasicAuthHeader encodes a personal access token the way Azure DevOps
// expects it: basic auth with an empty user name.
func BasicAuthHeader(token string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+token))
}
