// Package admin exposes the audit trail of publication changes to operators.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	dErrors "herald/pkg/domain-errors"
	audit "herald/pkg/platform/audit"
	"herald/pkg/platform/httputil"
	adminmw "herald/pkg/platform/middleware/admin"
	request "herald/pkg/platform/middleware/request"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

type AuditReader interface {
	ListBySubject(ctx context.Context, subject string) ([]audit.Event, error)
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
}

type Handler struct {
	audit      AuditReader
	logger     *slog.Logger
	adminToken string
}

func New(reader AuditReader, logger *slog.Logger, adminToken string) *Handler {
	return &Handler{audit: reader, logger: logger, adminToken: adminToken}
}

func (h *Handler) Register(r chi.Router) {
	r.With(adminmw.RequireAdminToken(h.adminToken, h.logger)).Get("/admin/audit", h.HandleListAudit)
}

// HandleListAudit lists events for ?subject=<type>:<id>, or the most recent
// events across all subjects.
func (h *Handler) HandleListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAuditLimit {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	var (
		events []audit.Event
		err    error
	)
	if subject := r.URL.Query().Get("subject"); subject != "" {
		events, err = h.audit.ListBySubject(ctx, subject)
		if len(events) > limit {
			events = events[:limit]
		}
	} else {
		events, err = h.audit.ListRecent(ctx, limit)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "list audit events failed",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAuditListResponse(events))
}
