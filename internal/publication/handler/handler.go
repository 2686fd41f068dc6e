package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"herald/internal/publication/models"
	"herald/internal/publication/service"
	dErrors "herald/pkg/domain-errors"
	"herald/pkg/platform/httputil"
	"herald/pkg/platform/middleware/admin"
	request "herald/pkg/platform/middleware/request"
	"herald/pkg/requestcontext"
)

const maxBannerLimit = 100

type Service interface {
	Resolve(ctx context.Context, ref models.EntityRef) (models.Entity, error)
	GetForRef(ctx context.Context, ref models.EntityRef) (*models.Record, error)
	CreateOrUpdate(ctx context.Context, entity models.Entity, params models.Params) (*models.Record, error)
	Create(ctx context.Context, entity models.Entity, params models.Params) (*models.Record, error)
	DeleteRef(ctx context.Context, ref models.EntityRef) error
	PruneOrphans(ctx context.Context) (int, error)
	Adjacent(ctx context.Context, rec *models.Record, d service.Direction) (*models.Record, models.Entity, error)
	Present(ctx context.Context, rec *models.Record) (*models.Presentation, error)
	Banners(ctx context.Context, limit int) ([]models.Presentation, error)
	Tags() []models.EntityType
}

type Listing interface {
	Published(ctx context.Context, tag models.EntityType) ([]models.Presentation, error)
	Invalidate(ctx context.Context)
}

// Handler exposes publication records over HTTP.
type Handler struct {
	svc        Service
	listing    Listing
	logger     *slog.Logger
	adminToken string
}

func New(svc Service, listing Listing, logger *slog.Logger, adminToken string) *Handler {
	return &Handler{svc: svc, listing: listing, logger: logger, adminToken: adminToken}
}

// Register mounts the public read routes and the admin-guarded write routes.
func (h *Handler) Register(r chi.Router) {
	requireAdmin := admin.RequireAdminToken(h.adminToken, h.logger)

	r.Get("/published", h.HandleListPublished)
	r.Get("/published/banners", h.HandleBanners)
	r.Route("/publications/{type}/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Get("/previous", h.handleAdjacent(service.Previous))
		r.Get("/next", h.handleAdjacent(service.Next))
		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Put("/", h.HandleCreateOrUpdate)
			r.Post("/", h.HandleCreate)
			r.Delete("/", h.HandleDelete)
		})
	})
	r.With(requireAdmin).Post("/admin/publications/prune", h.HandlePrune)
}

func (h *Handler) HandleListPublished(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var tag models.EntityType
	if raw := r.URL.Query().Get("type"); raw != "" {
		parsed, err := models.ParseEntityType(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if !slices.Contains(h.svc.Tags(), parsed) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown entity type"))
			return
		}
		tag = parsed
	}
	publications, err := h.listing.Published(ctx, tag)
	if err != nil {
		h.logError(r, "list published", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Publications: publications})
}

func (h *Handler) HandleBanners(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxBannerLimit {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be between 1 and 100"))
			return
		}
		limit = n
	}
	banners, err := h.svc.Banners(r.Context(), limit)
	if err != nil {
		h.logError(r, "list banners", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bannersResponse{Banners: banners})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, ok := h.loadRecord(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Present(ctx, rec)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleAdjacent(d service.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rec, ok := h.loadRecord(w, r)
		if !ok {
			return
		}
		neighbor, entity, err := h.svc.Adjacent(ctx, rec, d)
		if err != nil {
			h.logError(r, "find "+d.String(), err)
			httputil.WriteError(w, err)
			return
		}
		if neighbor == nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no "+d.String()+" publication"))
			return
		}
		p := models.Present(neighbor, entity, requestcontext.Now(ctx))
		httputil.WriteJSON(w, http.StatusOK, p)
	}
}

func (h *Handler) HandleCreateOrUpdate(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, http.StatusOK, h.svc.CreateOrUpdate)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, http.StatusCreated, h.svc.Create)
}

type writeFunc func(ctx context.Context, entity models.Entity, params models.Params) (*models.Record, error)

func (h *Handler) write(w http.ResponseWriter, r *http.Request, status int, fn writeFunc) {
	ctx := r.Context()
	ref, err := refFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req PublicationRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	entity, err := h.svc.Resolve(ctx, ref)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := fn(ctx, entity, req.Params())
	if err != nil {
		h.logError(r, "write publication", err)
		httputil.WriteError(w, err)
		return
	}
	p := models.Present(rec, entity, requestcontext.Now(ctx))
	httputil.WriteJSON(w, status, p)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ref, err := refFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.svc.DeleteRef(ctx, ref); err != nil {
		h.logError(r, "delete publication", err)
		httputil.WriteError(w, err)
		return
	}
	h.listing.Invalidate(ctx)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandlePrune(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pruned, err := h.svc.PruneOrphans(ctx)
	if pruned > 0 {
		h.listing.Invalidate(ctx)
	}
	if err != nil {
		h.logError(r, "prune orphans", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pruneResponse{Pruned: pruned})
}

func (h *Handler) loadRecord(w http.ResponseWriter, r *http.Request) (*models.Record, bool) {
	ref, err := refFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	rec, err := h.svc.GetForRef(r.Context(), ref)
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	if rec == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "publication not found"))
		return nil, false
	}
	return rec, true
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

func refFromPath(r *http.Request) (models.EntityRef, error) {
	return models.ParseEntityRef(chi.URLParam(r, "type"), chi.URLParam(r, "id"))
}
