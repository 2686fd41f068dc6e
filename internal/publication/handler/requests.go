package handler

import (
	"strings"
	"time"

	"herald/internal/publication/models"
	dErrors "herald/pkg/domain-errors"
)

// PublicationRequest is the body of PUT and POST /publications/{type}/{id}.
// Omitted fields keep their current value, or the default on creation.
type PublicationRequest struct {
	PublishAt     *time.Time `json:"publish_at,omitempty"`
	Approved      *bool      `json:"approved,omitempty"`
	BannerEnabled *bool      `json:"banner_enabled,omitempty"`
	BannerImage   *string    `json:"banner_image,omitempty"`
}

func (r *PublicationRequest) Normalize() {
	if r.BannerImage != nil {
		trimmed := strings.TrimSpace(*r.BannerImage)
		r.BannerImage = &trimmed
	}
}

func (r *PublicationRequest) Validate() error {
	if r.PublishAt != nil && r.PublishAt.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "publish_at must be a valid timestamp")
	}
	if r.BannerImage != nil && len(*r.BannerImage) > 1024 {
		return dErrors.New(dErrors.CodeValidation, "banner_image is too long")
	}
	return nil
}

func (r *PublicationRequest) Params() models.Params {
	return models.Params{
		PublishAt:     r.PublishAt,
		Approved:      r.Approved,
		BannerEnabled: r.BannerEnabled,
		BannerImage:   r.BannerImage,
	}
}

type listResponse struct {
	Publications []models.Presentation `json:"publications"`
}

type bannersResponse struct {
	Banners []models.Presentation `json:"banners"`
}

type pruneResponse struct {
	Pruned int `json:"pruned"`
}
