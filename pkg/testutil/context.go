package testutil

import (
	"net/http"
	"time"

	"herald/pkg/requestcontext"
)

// WithRequestTime pins the request clock, as the requesttime middleware would.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// WithRequestID sets the correlation ID the request middleware would assign.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithAdminToken sets the header the admin middleware checks.
func WithAdminToken(req *http.Request, token string) *http.Request {
	req.Header.Set("X-Admin-Token", token)
	return req
}
