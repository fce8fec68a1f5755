package events

import (
	"time"

	"github.com/ticketflow/helpdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketCommentAdded  EventType = "ticket_comment_added"
)

// Actor identifies who triggered an event.
type Actor struct {
	UserID  string `json:"user_id"`
	IsAdmin bool   `json:"is_admin"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketNumber   int64                 `json:"ticket_number"`
	Subject        string                `json:"subject"`
	Description    string                `json:"description"`
	Department     domain.Department     `json:"department"`
	Priority       domain.TicketPriority `json:"priority"`
	RequesterName  string                `json:"requester_name"`
	RequesterEmail string                `json:"requester_email"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	TicketNumber   int64               `json:"ticket_number"`
	Subject        string              `json:"subject"`
	OldStatus      domain.TicketStatus `json:"old_status"`
	NewStatus      domain.TicketStatus `json:"new_status"`
	RequesterName  string              `json:"requester_name"`
	RequesterEmail string              `json:"requester_email"`
}

// TicketCommentAddedPayload payload.
type TicketCommentAddedPayload struct {
	TicketNumber int64  `json:"ticket_number"`
	AuthorName   string `json:"author_name"`
	IsAttachment bool   `json:"is_attachment"`
	BodyPreview  string `json:"body_preview"`
}
