package admin

import (
	"time"

	audit "herald/pkg/platform/audit"
)

// AuditEventResponse is the HTTP response DTO for one audit event.
type AuditEventResponse struct {
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
	Action    string    `json:"action"`
	RecordID  string    `json:"record_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
}

// AuditListResponse wraps the audit trail for HTTP response.
type AuditListResponse struct {
	Events []AuditEventResponse `json:"events"`
	Total  int                  `json:"total"`
}

func toAuditListResponse(events []audit.Event) AuditListResponse {
	out := AuditListResponse{Events: make([]AuditEventResponse, 0, len(events)), Total: len(events)}
	for _, e := range events {
		out.Events = append(out.Events, AuditEventResponse{
			Category:  string(e.Category),
			Timestamp: e.Timestamp,
			Subject:   e.Subject,
			Action:    e.Action,
			RecordID:  e.RecordID,
			Reason:    e.Reason,
			RequestID: e.RequestID,
			ActorID:   e.ActorID,
		})
	}
	return out
}
