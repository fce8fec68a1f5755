package dto

import (
	"time"

	"github.com/ticketflow/helpdesk/internal/domain"
)

// CreateTicketRequest payload. Status and priority accept the canonical
// enum values as well as the legacy localized strings.
type CreateTicketRequest struct {
	Subject     string     `json:"subject"`
	Description string     `json:"description"`
	Department  string     `json:"department"`
	Priority    string     `json:"priority"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Text string `json:"text"`
}

// CommentResponse is one entry of the ticket thread.
type CommentResponse struct {
	Text           string    `json:"text"`
	AuthorID       string    `json:"author_id"`
	AuthorName     string    `json:"author_name"`
	CreatedAt      time.Time `json:"created_at"`
	IsAttachment   bool      `json:"is_attachment,omitempty"`
	AttachmentURL  string    `json:"attachment_url,omitempty"`
	AttachmentName string    `json:"attachment_name,omitempty"`
}

// ClosedByResponse reports who closed a ticket.
type ClosedByResponse struct {
	UserID   string    `json:"user_id"`
	UserName string    `json:"user_name"`
	ClosedAt time.Time `json:"closed_at"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// TicketSummary response.
type TicketSummary struct {
	ID           string                `json:"id"`
	TicketNumber int64                 `json:"ticket_number"`
	Subject      string                `json:"subject"`
	Department   domain.Department     `json:"department"`
	Priority     domain.TicketPriority `json:"priority"`
	Status       domain.TicketStatus   `json:"status"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	Deadline     *time.Time            `json:"deadline,omitempty"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	ID            string                `json:"id"`
	TicketNumber  int64                 `json:"ticket_number"`
	Subject       string                `json:"subject"`
	Description   string                `json:"description"`
	Department    domain.Department     `json:"department"`
	Priority      domain.TicketPriority `json:"priority"`
	Status        domain.TicketStatus   `json:"status"`
	RequesterID   string                `json:"requester_id"`
	RequesterName string                `json:"requester_name"`
	Attachment    *AttachmentResponse   `json:"attachment,omitempty"`
	Comments      []CommentResponse     `json:"comments"`
	ClosedBy      *ClosedByResponse     `json:"closed_by,omitempty"`
	Deadline      *time.Time            `json:"deadline,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// StatusUpdateResponse reports a committed status change plus an optional
// notification warning.
type StatusUpdateResponse struct {
	Ticket  TicketSummary `json:"ticket"`
	Warning string        `json:"warning,omitempty"`
}
