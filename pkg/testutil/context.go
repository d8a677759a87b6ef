package testutil

import (
	"net/http"
	"time"

	"compliancelab/pkg/requestcontext"
)

// WithRequestTime pins the request-scoped clock, the same way the request
// time middleware would, so decisions see a fixed "today".
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
