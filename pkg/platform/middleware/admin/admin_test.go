package admin

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireAdminToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name     string
		expected string
		headers  map[string]string
		status   int
	}{
		{"header token", "s3cret", map[string]string{HeaderAdminToken: "s3cret"}, http.StatusOK},
		{"bearer token", "s3cret", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"wrong token", "s3cret", map[string]string{HeaderAdminToken: "nope"}, http.StatusUnauthorized},
		{"missing token", "s3cret", nil, http.StatusUnauthorized},
		{"unconfigured rejects all", "", map[string]string{HeaderAdminToken: ""}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/publications/article/1", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			RequireAdminToken(tt.expected, logger)(ok).ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}
