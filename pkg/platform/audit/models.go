package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events for retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers destructive or administrative actions that
	// must be traceable later (deletes, pruning).
	CategoryCompliance EventCategory = "compliance"
	// CategoryOperations covers routine editorial activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// Subject is the entity ref ("article:42") the action applied to.
	Subject   string
	Action    string
	RecordID  string
	Reason    string
	RequestID string
	ActorID   string
}

type AuditEvent string

const (
	EventPublicationCreated  AuditEvent = "publication_created"
	EventPublicationUpdated  AuditEvent = "publication_updated"
	EventPublicationApproved AuditEvent = "publication_approved"
	EventPublicationDeleted  AuditEvent = "publication_deleted"
	EventPublicationPruned   AuditEvent = "publication_pruned"
	EventContentCreated      AuditEvent = "content_created"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventPublicationDeleted: CategoryCompliance,
	EventPublicationPruned:  CategoryCompliance,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
