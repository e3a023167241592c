package api

import "context"

// Requester is the request surface resource helpers depend on. Client
// implements it; tests can substitute a fake without an HTTP server.
type Requester interface {
	// apiPath returns the absolute URL for a path under /api.
	apiPath(path string) string

	// do executes a request with an optional JSON body and decodes the
	// response into result when non-nil.
	do(ctx context.Context, method, url string, body any, result any) error
}
