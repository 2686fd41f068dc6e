package models

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// PublicationState is the three-way state shown next to a record.
type PublicationState string

const (
	StateAwaitingApproval PublicationState = "awaiting_approval"
	StateScheduled        PublicationState = "scheduled"
	StatePublished        PublicationState = "published"
)

// Status pairs the state with human text ("3 days left", "2 hours ago").
type Status struct {
	State PublicationState `json:"state"`
	Text  string           `json:"text"`
}

const awaitingApprovalText = "Still needs approval"

// HumanizedStatus renders r's state relative to now. Unapproved records are
// awaiting approval whatever their publish_at.
func (r *Record) HumanizedStatus(now time.Time) Status {
	if !r.Approved {
		return Status{State: StateAwaitingApproval, Text: awaitingApprovalText}
	}
	text := humanize.RelTime(r.PublishAt, now, "ago", "left")
	if r.PublishAt.After(now) {
		return Status{State: StateScheduled, Text: text}
	}
	return Status{State: StatePublished, Text: text}
}

// DisplayTitle is the entity's title override, else the entity rendered as a
// string, else its reference.
func (r *Record) DisplayTitle(e Entity) string {
	if t, ok := e.(TitleOverrider); ok {
		return t.PublishTitle()
	}
	return r.entityString(e)
}

// DisplayDescription falls back the same way as DisplayTitle.
func (r *Record) DisplayDescription(e Entity) string {
	if d, ok := e.(DescriptionOverrider); ok {
		return d.PublishDescription()
	}
	return r.entityString(e)
}

// ResolvedBannerImage picks the banner for r: nothing when the entity refuses
// banners, then the record's own image, then the entity's override.
func (r *Record) ResolvedBannerImage(e Entity) (string, bool) {
	if g, ok := e.(BannerGate); ok && !g.AllowBanners() {
		return "", false
	}
	if r.BannerImage != "" {
		return r.BannerImage, true
	}
	if o, ok := e.(BannerImageOverrider); ok {
		if img, ok := o.PublishBannerImage(); ok && img != "" {
			return img, true
		}
	}
	return "", false
}

// AbsoluteURL forwards to the entity's permalink.
func (r *Record) AbsoluteURL(e Entity) (string, bool) {
	if l, ok := e.(Linker); ok {
		return l.AbsoluteURL(), true
	}
	return "", false
}

func (r *Record) entityString(e Entity) string {
	if s, ok := e.(fmt.Stringer); ok {
		return s.String()
	}
	return r.Entity.String()
}

// Presentation is a record with every derived value resolved against its entity.
type Presentation struct {
	Record      *Record `json:"publication"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	URL         string  `json:"url,omitempty"`
	BannerImage string  `json:"banner_image,omitempty"`
	Visible     bool    `json:"visible"`
	Status      Status  `json:"status"`
}

// Refresh recomputes the time-relative fields against now. Cached
// presentations call it on every read.
func (p *Presentation) Refresh(now time.Time) {
	if p.Record == nil {
		return
	}
	p.Visible = p.Record.VisibleAt(now)
	p.Status = p.Record.HumanizedStatus(now)
}

// Present resolves r against e at now.
func Present(r *Record, e Entity, now time.Time) Presentation {
	p := Presentation{
		Record:      r,
		Title:       r.DisplayTitle(e),
		Description: r.DisplayDescription(e),
		Visible:     r.VisibleAt(now),
		Status:      r.HumanizedStatus(now),
	}
	if url, ok := r.AbsoluteURL(e); ok {
		p.URL = url
	}
	if img, ok := r.ResolvedBannerImage(e); ok {
		p.BannerImage = img
	}
	return p
}
