// Package admin guards write routes behind the shared admin token.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	dErrors "herald/pkg/domain-errors"
	"herald/pkg/platform/httputil"
	request "herald/pkg/platform/middleware/request"
)

// HeaderAdminToken carries the token; "Authorization: Bearer <token>" is
// accepted too.
const HeaderAdminToken = "X-Admin-Token"

// RequireAdminToken rejects requests whose token does not match expected. An
// empty expected token rejects everything.
func RequireAdminToken(expected string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", request.GetRequestID(ctx),
					"path", r.URL.Path,
					"token_present", token != "",
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if token := r.Header.Get(HeaderAdminToken); token != "" {
		return token
	}
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(bearer)
	}
	return ""
}
