package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"herald/internal/content/article/models"
	"herald/internal/content/article/service"
	dErrors "herald/pkg/domain-errors"
	"herald/pkg/platform/httputil"
	"herald/pkg/platform/middleware/admin"
	request "herald/pkg/platform/middleware/request"
	"herald/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*service.Result, error)
	Get(ctx context.Context, id int64) (*service.Result, error)
	ListPublished(ctx context.Context) ([]*models.Article, error)
	Delete(ctx context.Context, id int64) error
}

// Invalidator drops cached publication listings.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

type Handler struct {
	svc        Service
	listing    Invalidator
	logger     *slog.Logger
	adminToken string
}

func New(svc Service, listing Invalidator, logger *slog.Logger, adminToken string) *Handler {
	return &Handler{svc: svc, listing: listing, logger: logger, adminToken: adminToken}
}

func (h *Handler) Register(r chi.Router) {
	requireAdmin := admin.RequireAdminToken(h.adminToken, h.logger)

	r.Get("/articles", h.HandleListPublished)
	r.Get("/articles/{id}", h.HandleGet)
	r.With(requireAdmin).Post("/articles", h.HandleCreate)
	r.With(requireAdmin).Delete("/articles/{id}", h.HandleDelete)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateArticleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.svc.Create(ctx, req.ToCreate())
	if err != nil {
		h.logError(r, "create article", err)
		httputil.WriteError(w, err)
		return
	}
	// The hook cleared the listing inside the transaction; a read racing the
	// commit may have cached the old one.
	h.listing.Invalidate(ctx)
	httputil.WriteJSON(w, http.StatusCreated, toResultResponse(res, requestcontext.Now(ctx)))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := idFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.svc.Get(ctx, id)
	if err != nil {
		h.logError(r, "get article", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResultResponse(res, requestcontext.Now(ctx)))
}

func (h *Handler) HandleListPublished(w http.ResponseWriter, r *http.Request) {
	articles, err := h.svc.ListPublished(r.Context())
	if err != nil {
		h.logError(r, "list articles", err)
		httputil.WriteError(w, err)
		return
	}
	resp := articleListResponse{Articles: make([]articleResponse, 0, len(articles))}
	for _, a := range articles {
		resp.Articles = append(resp.Articles, toArticleResponse(a))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := idFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.svc.Delete(ctx, id); err != nil {
		h.logError(r, "delete article", err)
		httputil.WriteError(w, err)
		return
	}
	h.listing.Invalidate(ctx)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logError(r *http.Request, op string, err error) {
	if !dErrors.HasCode(err, dErrors.CodeInternal) {
		return
	}
	ctx := r.Context()
	h.logger.ErrorContext(ctx, op+" failed",
		"request_id", request.GetRequestID(ctx),
		"error", err,
	)
}

func idFromPath(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "invalid article id")
	}
	return id, nil
}
