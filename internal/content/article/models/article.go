// Package models defines the article content kind. Articles opt into every
// publication capability: title and description overrides, the banner gate
// and image, the published-at mirror and a permalink.
package models

import (
	"fmt"
	"strings"
	"time"

	pubmodels "herald/internal/publication/models"
	dErrors "herald/pkg/domain-errors"
)

// Tag is the entity type articles register under.
const Tag pubmodels.EntityType = "article"

type Article struct {
	ID          int64                 `json:"id"`
	Title       string                `json:"title"`
	Slug        string                `json:"slug"`
	Summary     string                `json:"summary,omitempty"`
	Body        string                `json:"body,omitempty"`
	CoverImage  string                `json:"cover_image,omitempty"`
	AllowBanner bool                  `json:"allow_banner"`
	Status      pubmodels.DraftStatus `json:"status"`
	// PublishedAt mirrors the publication record's publish_at once approved.
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewArticle validates and builds an unsaved article. A zero status means draft.
func NewArticle(title, slug, summary, body, cover string, allowBanner bool, status pubmodels.DraftStatus, now time.Time) (*Article, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "title is required")
	}
	if len(title) > 255 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "title must be at most 255 characters")
	}
	slug = strings.ToLower(strings.TrimSpace(slug))
	if err := validateSlug(slug); err != nil {
		return nil, err
	}
	if status == 0 {
		status = pubmodels.StatusDraft
	}
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("invalid status %d", status))
	}
	return &Article{
		Title:       title,
		Slug:        slug,
		Summary:     strings.TrimSpace(summary),
		Body:        body,
		CoverImage:  strings.TrimSpace(cover),
		AllowBanner: allowBanner,
		Status:      status,
		CreatedAt:   pubmodels.NormalizeTime(now),
	}, nil
}

func validateSlug(slug string) error {
	if slug == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "slug is required")
	}
	for _, r := range slug {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("invalid slug %q", slug))
		}
	}
	return nil
}

func (a *Article) EntityID() int64 { return a.ID }

func (a *Article) String() string { return a.Title }

func (a *Article) PublishTitle() string { return a.Title }

// PublishDescription is the summary, or the title for articles without one.
func (a *Article) PublishDescription() string {
	if a.Summary == "" {
		return a.Title
	}
	return a.Summary
}

func (a *Article) AllowBanners() bool { return a.AllowBanner }

func (a *Article) PublishBannerImage() (string, bool) {
	return a.CoverImage, a.CoverImage != ""
}

func (a *Article) SetPublishedAt(t time.Time) {
	t = pubmodels.NormalizeTime(t)
	a.PublishedAt = &t
}

func (a *Article) AbsoluteURL() string { return "/articles/" + a.Slug }

func (a *Article) DraftStatus() pubmodels.DraftStatus { return a.Status }

// Clone returns a copy safe to hand across store boundaries.
func (a *Article) Clone() *Article {
	if a == nil {
		return nil
	}
	c := *a
	if a.PublishedAt != nil {
		t := *a.PublishedAt
		c.PublishedAt = &t
	}
	return &c
}

var (
	_ pubmodels.TitleOverrider       = (*Article)(nil)
	_ pubmodels.DescriptionOverrider = (*Article)(nil)
	_ pubmodels.BannerGate           = (*Article)(nil)
	_ pubmodels.BannerImageOverrider = (*Article)(nil)
	_ pubmodels.PublishedAtMirror    = (*Article)(nil)
	_ pubmodels.Linker               = (*Article)(nil)
	_ pubmodels.Drafter              = (*Article)(nil)
)
