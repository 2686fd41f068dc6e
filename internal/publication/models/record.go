package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	dErrors "herald/pkg/domain-errors"
)

// PublicationID identifies a publication record.
type PublicationID uuid.UUID

func NewPublicationID() PublicationID { return PublicationID(uuid.New()) }

func (id PublicationID) String() string { return uuid.UUID(id).String() }

func (id PublicationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id PublicationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *PublicationID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

// ParsePublicationID parses a non-nil UUID.
func ParsePublicationID(s string) (PublicationID, error) {
	u, err := uuid.Parse(s)
	if err != nil || u == uuid.Nil {
		return PublicationID{}, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("invalid publication id %q", s))
	}
	return PublicationID(u), nil
}

// Record governs when, and whether, one entity is visible.
//
// Invariants:
//   - exactly one Record per Entity ref (enforced by the store)
//   - PublishAt is UTC with microsecond precision, matching timestamptz
//   - the zero BannerImage means "no image of its own"
type Record struct {
	ID            PublicationID `json:"id"`
	Entity        EntityRef     `json:"entity"`
	PublishAt     time.Time     `json:"publish_at"`
	Approved      bool          `json:"approved"`
	BannerEnabled bool          `json:"banner_enabled"`
	BannerImage   string        `json:"banner_image,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Params carries a create-or-update request. Nil fields keep the current
// value, or the default on creation.
type Params struct {
	PublishAt     *time.Time
	Approved      *bool
	BannerEnabled *bool
	BannerImage   *string
}

// NewRecord builds a record for ref with defaults: publish now, unapproved,
// banners enabled, then applies params.
func NewRecord(ref EntityRef, params Params, now time.Time) (*Record, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	now = NormalizeTime(now)
	r := &Record{
		ID:            NewPublicationID(),
		Entity:        ref,
		PublishAt:     now,
		BannerEnabled: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.Apply(params, now)
	return r, nil
}

// Apply copies the non-nil params onto r.
func (r *Record) Apply(params Params, now time.Time) {
	if params.PublishAt != nil {
		r.PublishAt = NormalizeTime(*params.PublishAt)
	}
	if params.Approved != nil {
		r.Approved = *params.Approved
	}
	if params.BannerEnabled != nil {
		r.BannerEnabled = *params.BannerEnabled
	}
	if params.BannerImage != nil {
		r.BannerImage = *params.BannerImage
	}
	r.UpdatedAt = NormalizeTime(now)
}

// Clone returns a copy safe to hand across store boundaries.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// NormalizeTime truncates to the precision the database keeps.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Visible is the publication predicate: approved and not before publishAt.
// Equality with publishAt counts as visible.
func Visible(approved bool, publishAt, now time.Time) bool {
	return approved && !publishAt.After(now)
}

// VisibleAt applies Visible to r.
func (r *Record) VisibleAt(now time.Time) bool {
	return Visible(r.Approved, r.PublishAt, now)
}

// Before reports whether r sorts before o in (publish_at, id) order, the order
// neighbor navigation walks. Listings use the reverse.
func (r *Record) Before(o *Record) bool {
	if !r.PublishAt.Equal(o.PublishAt) {
		return r.PublishAt.Before(o.PublishAt)
	}
	return r.ID.String() < o.ID.String()
}

// Filter narrows a published listing.
type Filter struct {
	// Type restricts to one entity type; empty means all.
	Type EntityType
	// BannersOnly keeps records with BannerEnabled set.
	BannersOnly bool
	// Limit caps the result; zero means no cap.
	Limit int
}

// Matches reports whether r passes the non-temporal parts of f.
func (f Filter) Matches(r *Record) bool {
	if f.Type != "" && r.Entity.Type != f.Type {
		return false
	}
	if f.BannersOnly && !r.BannerEnabled {
		return false
	}
	return true
}
