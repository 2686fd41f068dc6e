package handler

import (
	"strings"
	"time"

	"herald/internal/content/article/models"
	"herald/internal/content/article/service"
	pubhandler "herald/internal/publication/handler"
	pubmodels "herald/internal/publication/models"
	dErrors "herald/pkg/domain-errors"
)

// CreateArticleRequest is the body of POST /articles. AllowBanner defaults to
// true and Status to "draft".
type CreateArticleRequest struct {
	Title       string                         `json:"title"`
	Slug        string                         `json:"slug"`
	Summary     string                         `json:"summary,omitempty"`
	Body        string                         `json:"body,omitempty"`
	CoverImage  string                         `json:"cover_image,omitempty"`
	AllowBanner *bool                          `json:"allow_banner,omitempty"`
	Status      string                         `json:"status,omitempty"`
	Publication *pubhandler.PublicationRequest `json:"publication,omitempty"`
}

func (r *CreateArticleRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Slug = strings.ToLower(strings.TrimSpace(r.Slug))
	if r.Publication != nil {
		r.Publication.Normalize()
	}
}

func (r *CreateArticleRequest) Validate() error {
	if r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if r.Slug == "" {
		return dErrors.New(dErrors.CodeValidation, "slug is required")
	}
	if _, err := pubmodels.ParseDraftStatus(r.Status); err != nil {
		return dErrors.New(dErrors.CodeValidation, "status must be draft or finished")
	}
	if r.Publication != nil {
		return r.Publication.Validate()
	}
	return nil
}

// ToCreate assumes Validate passed.
func (r *CreateArticleRequest) ToCreate() service.CreateRequest {
	status, _ := pubmodels.ParseDraftStatus(r.Status)
	allow := true
	if r.AllowBanner != nil {
		allow = *r.AllowBanner
	}
	req := service.CreateRequest{
		Title:       r.Title,
		Slug:        r.Slug,
		Summary:     r.Summary,
		Body:        r.Body,
		CoverImage:  r.CoverImage,
		AllowBanner: allow,
		Status:      status,
	}
	if r.Publication != nil {
		req.Publication = r.Publication.Params()
	}
	return req
}

type articleResponse struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Summary     string     `json:"summary,omitempty"`
	Body        string     `json:"body,omitempty"`
	CoverImage  string     `json:"cover_image,omitempty"`
	AllowBanner bool       `json:"allow_banner"`
	Status      string     `json:"status"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toArticleResponse(a *models.Article) articleResponse {
	return articleResponse{
		ID:          a.ID,
		Title:       a.Title,
		Slug:        a.Slug,
		Summary:     a.Summary,
		Body:        a.Body,
		CoverImage:  a.CoverImage,
		AllowBanner: a.AllowBanner,
		Status:      a.Status.String(),
		URL:         a.AbsoluteURL(),
		PublishedAt: a.PublishedAt,
		CreatedAt:   a.CreatedAt,
	}
}

type articleWithPublication struct {
	Article     articleResponse         `json:"article"`
	Publication *pubmodels.Presentation `json:"publication,omitempty"`
}

func toResultResponse(res *service.Result, now time.Time) articleWithPublication {
	out := articleWithPublication{Article: toArticleResponse(res.Article)}
	if res.Publication != nil {
		p := pubmodels.Present(res.Publication, res.Article, now)
		out.Publication = &p
	}
	return out
}

type articleListResponse struct {
	Articles []articleResponse `json:"articles"`
}
