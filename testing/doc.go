// Package testing provides testing utilities for code built on the Azure
// Repos client.
//
// # Mocks
//
// The mocks subpackage provides a testify-based mock of httpclient.Client so
// resource calls can be verified without a network.
//
// # Fixtures
//
// The fixtures subpackage builds canned executor responses and failures
// (JSON, plain text, raw, HTTP errors) for use with the mocks.
//
// # Fake server
//
// The fakeado subpackage runs an in-memory Azure DevOps Git API on an
// httptest server for end-to-end tests of the client and the CLI.
//
// # Usage
//
//	import (
//		"github.com/gaborage/azrepos/testing/fakeado"
//		"github.com/gaborage/azrepos/testing/fixtures"
//		"github.com/gaborage/azrepos/testing/mocks"
//	)
package testing
