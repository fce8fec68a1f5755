package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// ParseTicketStatus canonicalizes the mixed-case and localized status strings
// found in imported data ("open", "Aberto", "Em Andamento", "Fechado") to the
// three-state enum. Raw strings are never compared internally.
func ParseTicketStatus(raw string) (TicketStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open", "aberto":
		return TicketStatusOpen, true
	case "in_progress", "in progress", "em andamento":
		return TicketStatusInProgress, true
	case "closed", "fechado":
		return TicketStatusClosed, true
	}
	return "", false
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
)

// ParseTicketPriority canonicalizes priority strings, including the localized
// values carried over from legacy data.
func ParseTicketPriority(raw string) (TicketPriority, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low", "baixa":
		return TicketPriorityLow, true
	case "medium", "média", "media":
		return TicketPriorityMedium, true
	case "high", "alta":
		return TicketPriorityHigh, true
	}
	return "", false
}

// Department enumerates the fixed set of departments a ticket is filed under.
type Department string

const (
	DepartmentEngineering     Department = "ENGINEERING"
	DepartmentSales           Department = "SALES"
	DepartmentHR              Department = "HR"
	DepartmentCustomerService Department = "CUSTOMER_SERVICE"
	DepartmentProcurement     Department = "PROCUREMENT"
	DepartmentFinance         Department = "FINANCE"
	DepartmentIT              Department = "IT"
	DepartmentAccounting      Department = "ACCOUNTING"
)

// Departments lists every valid department.
func Departments() []Department {
	return []Department{
		DepartmentEngineering,
		DepartmentSales,
		DepartmentHR,
		DepartmentCustomerService,
		DepartmentProcurement,
		DepartmentFinance,
		DepartmentIT,
		DepartmentAccounting,
	}
}

// ValidDepartment reports whether d is one of the enumerated departments.
func ValidDepartment(d Department) bool {
	for _, candidate := range Departments() {
		if candidate == d {
			return true
		}
	}
	return false
}

// Requester identifies the user who opened a ticket. Immutable after creation.
type Requester struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

// ClosedBy records who closed a ticket and when. Set exactly once.
type ClosedBy struct {
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	UserEmail string    `json:"user_email"`
	ClosedAt  time.Time `json:"closed_at"`
}

// Attachment references an uploaded file by its public URL.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Comment is one entry in a ticket's append-only thread. Entries are
// immutable once appended.
type Comment struct {
	Text           string    `json:"text"`
	AuthorID       string    `json:"author_id"`
	AuthorName     string    `json:"author_name"`
	CreatedAt      time.Time `json:"created_at"`
	IsAttachment   bool      `json:"is_attachment,omitempty"`
	AttachmentURL  string    `json:"attachment_url,omitempty"`
	AttachmentName string    `json:"attachment_name,omitempty"`
}

// Ticket is the aggregate for support requests. TicketNumber is the
// human-facing identifier, assigned sequentially at creation.
type Ticket struct {
	ID           string
	TicketNumber int64
	Subject      string
	Description  string
	Department   Department
	Priority     TicketPriority
	Status       TicketStatus
	Requester    Requester
	Attachment   *Attachment
	Comments     []Comment
	ClosedBy     *ClosedBy
	Deadline     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
