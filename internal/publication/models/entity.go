package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	dErrors "herald/pkg/domain-errors"
)

// EntityType is the stable tag a content kind registers under ("article").
type EntityType string

func (t EntityType) String() string { return string(t) }

// ParseEntityType normalizes and validates a tag taken from user input.
func ParseEntityType(s string) (EntityType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "entity type is required")
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '.' || r == '-') {
			return "", dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("invalid entity type %q", s))
		}
	}
	return EntityType(s), nil
}

// EntityRef points at exactly one entity of any registered kind.
type EntityRef struct {
	Type EntityType `json:"entity_type"`
	ID   int64      `json:"entity_id"`
}

func (r EntityRef) String() string {
	return r.Type.String() + ":" + strconv.FormatInt(r.ID, 10)
}

// Validate enforces a non-empty type and a positive identifier.
func (r EntityRef) Validate() error {
	if r.Type == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "entity type cannot be empty")
	}
	if r.ID <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "entity id must be positive")
	}
	return nil
}

// ParseEntityRef builds a ref from path segments.
func ParseEntityRef(entityType, entityID string) (EntityRef, error) {
	t, err := ParseEntityType(entityType)
	if err != nil {
		return EntityRef{}, err
	}
	n, err := strconv.ParseInt(entityID, 10, 64)
	if err != nil || n <= 0 {
		return EntityRef{}, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("invalid entity id %q", entityID))
	}
	return EntityRef{Type: t, ID: n}, nil
}

// Entity is any content record that can carry a publication record.
type Entity interface {
	EntityID() int64
}

// Optional capabilities. An entity that does not implement one gets the
// default behavior documented on the helper that consults it.

// TitleOverrider supplies a feed/display title distinct from the entity itself.
type TitleOverrider interface {
	PublishTitle() string
}

// DescriptionOverrider supplies a feed/display description.
type DescriptionOverrider interface {
	PublishDescription() string
}

// BannerGate lets an entity opt out of banner rotation entirely.
type BannerGate interface {
	AllowBanners() bool
}

// BannerImageOverrider supplies the fallback banner image when the record has none.
type BannerImageOverrider interface {
	PublishBannerImage() (string, bool)
}

// PublishedAtMirror receives publish_at when an approved record is written.
type PublishedAtMirror interface {
	SetPublishedAt(t time.Time)
}

// Linker exposes the entity's permalink; a record has none of its own.
type Linker interface {
	AbsoluteURL() string
}
