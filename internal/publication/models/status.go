package models

import (
	"fmt"
	"strings"
)

// DraftStatus marks whether the author considers the content done. It is
// independent of approval and scheduling.
type DraftStatus int

const (
	StatusDraft    DraftStatus = 1
	StatusFinished DraftStatus = 2
)

// Drafter is implemented by content kinds that carry a DraftStatus.
type Drafter interface {
	DraftStatus() DraftStatus
}

func (s DraftStatus) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusFinished:
		return "finished"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// IsValid reports whether s is a known status.
func (s DraftStatus) IsValid() bool {
	return s == StatusDraft || s == StatusFinished
}

// ParseDraftStatus accepts "draft" / "finished"; empty input is Draft.
func ParseDraftStatus(s string) (DraftStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "draft":
		return StatusDraft, nil
	case "finished":
		return StatusFinished, nil
	default:
		return 0, fmt.Errorf("unknown draft status %q", s)
	}
}
