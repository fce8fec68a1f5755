package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ticketflow/helpdesk/internal/domain"
	"github.com/ticketflow/helpdesk/internal/events"
	"github.com/ticketflow/helpdesk/internal/observability"
	"github.com/ticketflow/helpdesk/internal/repository"
	"github.com/ticketflow/helpdesk/internal/storage"
	apperrors "github.com/ticketflow/helpdesk/pkg/util"
)

const (
	minSubjectLen     = 5
	minDescriptionLen = 10
)

// TicketService coordinates the ticket lifecycle: creation with sequential
// numbering, the status machine, and the comment thread.
type TicketService struct {
	tickets    repository.TicketRepository
	uploader   storage.Uploader
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics

	now            func() time.Time
	createAttempts int
	createBackoff  time.Duration
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Uploader   storage.Uploader
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Subject     string
	Description string
	Department  domain.Department
	Priority    domain.TicketPriority
	Deadline    *time.Time
	Attachment  *domain.Attachment
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Limit      int
	Offset     int
}

// StatusUpdateResult reports a committed status change. NotificationWarning
// is set when the change is durable but the requester could not be queued
// for notification.
type StatusUpdateResult struct {
	Ticket              *domain.Ticket
	NotificationWarning string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:        deps.TicketRepo,
		uploader:       deps.Uploader,
		dispatcher:     deps.Dispatcher,
		logger:         deps.Logger,
		metrics:        deps.Metrics,
		now:            time.Now,
		createAttempts: 3,
		createBackoff:  time.Second,
	}
}

// CreateTicket validates input and inserts a ticket with the next sequential
// number. The numbering transaction is retried on transient store failures
// and serialization conflicts up to the attempt bound, with a fixed backoff.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	if actor.UserID == "" {
		return nil, apperrors.NewForbidden("authentication required")
	}
	if err := validateCreateInput(&input); err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		Subject:     input.Subject,
		Description: input.Description,
		Department:  input.Department,
		Priority:    input.Priority,
		Status:      domain.TicketStatusOpen,
		Requester: domain.Requester{
			UserID:    actor.UserID,
			UserName:  actor.UserName,
			UserEmail: actor.UserEmail,
		},
		Attachment: input.Attachment,
		Deadline:   input.Deadline,
	}

	var err error
	for attempt := 1; attempt <= s.createAttempts; attempt++ {
		err = s.tickets.CreateWithNextNumber(ctx, ticket)
		if err == nil {
			break
		}
		if !apperrors.IsTransient(err) || attempt == s.createAttempts {
			return nil, err
		}
		s.metrics.RecordNumberingRetry()
		s.logger.Warn("ticket numbering conflict; retrying",
			zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, apperrors.NewUnavailable("ticket creation cancelled", ctx.Err())
		case <-time.After(s.createBackoff):
		}
	}
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Payload: events.TicketCreatedPayload{
			TicketNumber:   ticket.TicketNumber,
			Subject:        ticket.Subject,
			Description:    ticket.Description,
			Department:     ticket.Department,
			Priority:       ticket.Priority,
			RequesterName:  ticket.Requester.UserName,
			RequesterEmail: ticket.Requester.UserEmail,
		},
	})
	return ticket, nil
}

// CreateTicketWithFile validates the ticket input, uploads the attachment,
// then creates the ticket. Validation runs first so a rejected request never
// touches the attachment store; the upload runs before the insert so an
// upload failure never leaves a half-created ticket behind.
func (s *TicketService) CreateTicketWithFile(ctx context.Context, actor domain.Actor, input TicketCreateInput, file storage.File) (*domain.Ticket, error) {
	if actor.UserID == "" {
		return nil, apperrors.NewForbidden("authentication required")
	}
	if err := validateCreateInput(&input); err != nil {
		return nil, err
	}
	attachment, err := s.uploader.Upload(ctx, file)
	if err != nil {
		return nil, err
	}
	input.Attachment = attachment
	return s.CreateTicket(ctx, actor, input)
}

// UpdateStatus moves a ticket through the Open/InProgress/Closed machine.
// Admins may set any status; the requester may only close their own ticket.
// Setting the current status again is a no-op success.
func (s *TicketService) UpdateStatus(ctx context.Context, actor domain.Actor, ticketID string, newStatus domain.TicketStatus) (StatusUpdateResult, error) {
	switch newStatus {
	case domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusClosed:
	default:
		return StatusUpdateResult{}, apperrors.NewValidationError("unknown status", map[string]any{"status": newStatus})
	}

	var oldStatus domain.TicketStatus
	ticket, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) error {
		if err := requireTicketAccess(actor, t); err != nil {
			return err
		}
		oldStatus = t.Status
		// The no-op guard runs before the role gate: re-submitting the
		// current status is a success for anyone with ticket access.
		if t.Status == newStatus {
			return repository.ErrNoChange
		}
		if !actor.IsAdmin && newStatus != domain.TicketStatusClosed {
			return apperrors.NewForbidden("only an admin can set this status")
		}

		now := s.now()
		t.Status = newStatus
		t.UpdatedAt = now
		if newStatus == domain.TicketStatusClosed && t.ClosedBy == nil {
			// First closer wins; re-closing never rewrites the record.
			t.ClosedBy = &domain.ClosedBy{
				UserID:    actor.UserID,
				UserName:  actor.UserName,
				UserEmail: actor.UserEmail,
				ClosedAt:  now,
			}
		}
		return nil
	})
	if err != nil {
		return StatusUpdateResult{}, err
	}

	result := StatusUpdateResult{Ticket: ticket}
	if oldStatus == newStatus || s.dispatcher == nil {
		return result, nil
	}

	publishErr := s.dispatcher.Publish(ctx, s.newEvent(events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Payload: events.TicketStatusChangedPayload{
			TicketNumber:   ticket.TicketNumber,
			Subject:        ticket.Subject,
			OldStatus:      oldStatus,
			NewStatus:      newStatus,
			RequesterName:  ticket.Requester.UserName,
			RequesterEmail: ticket.Requester.UserEmail,
		},
	}))
	if publishErr != nil {
		result.NotificationWarning = "status updated, but the requester may not receive a notification"
	}
	return result, nil
}

// AddComment appends a text comment to the ticket thread.
func (s *TicketService) AddComment(ctx context.Context, actor domain.Actor, ticketID, text string) (*domain.Ticket, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("comment text required", nil)
	}
	return s.appendComment(ctx, actor, ticketID, domain.Comment{
		Text:       text,
		AuthorID:   actor.UserID,
		AuthorName: actor.UserName,
	})
}

// AddAttachmentComment uploads the file and appends an attachment comment.
func (s *TicketService) AddAttachmentComment(ctx context.Context, actor domain.Actor, ticketID string, file storage.File) (*domain.Ticket, error) {
	attachment, err := s.uploader.Upload(ctx, file)
	if err != nil {
		return nil, err
	}
	return s.appendComment(ctx, actor, ticketID, domain.Comment{
		Text:           fmt.Sprintf("Attached file: %s", attachment.Name),
		AuthorID:       actor.UserID,
		AuthorName:     actor.UserName,
		IsAttachment:   true,
		AttachmentURL:  attachment.URL,
		AttachmentName: attachment.Name,
	})
}

// appendComment applies the append to the freshly-read ticket inside the
// store transaction, so two racing comments both survive.
func (s *TicketService) appendComment(ctx context.Context, actor domain.Actor, ticketID string, comment domain.Comment) (*domain.Ticket, error) {
	ticket, err := s.tickets.Mutate(ctx, ticketID, func(t *domain.Ticket) error {
		if err := requireTicketAccess(actor, t); err != nil {
			return err
		}
		if t.Status == domain.TicketStatusClosed {
			return apperrors.NewValidationError("cannot comment on a closed ticket", nil)
		}
		now := s.now()
		comment.CreatedAt = now
		t.Comments = append(t.Comments, comment)
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Payload: events.TicketCommentAddedPayload{
			TicketNumber: ticket.TicketNumber,
			AuthorName:   comment.AuthorName,
			IsAttachment: comment.IsAttachment,
			BodyPreview:  stringPreview(comment.Text, 120),
		},
	})
	return ticket, nil
}

// GetTicket fetches a ticket, enforcing requester-or-admin access.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := requireTicketAccess(actor, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// ListTickets returns the actor's own tickets.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Actor, filter TicketListFilter) ([]domain.Ticket, error) {
	return s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		RequesterID: &actor.UserID,
		Statuses:    filter.Statuses,
		Priorities:  filter.Priorities,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
}

// ListAllTickets returns every ticket; admin only.
func (s *TicketService) ListAllTickets(ctx context.Context, actor domain.Actor, filter TicketListFilter) ([]domain.Ticket, error) {
	if !actor.IsAdmin {
		return nil, apperrors.NewForbidden("admin required")
	}
	return s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

func validateCreateInput(input *TicketCreateInput) error {
	input.Subject = strings.TrimSpace(input.Subject)
	input.Description = strings.TrimSpace(input.Description)

	details := map[string]any{}
	if len([]rune(input.Subject)) < minSubjectLen {
		details["subject"] = fmt.Sprintf("must be at least %d characters", minSubjectLen)
	}
	if len([]rune(input.Description)) < minDescriptionLen {
		details["description"] = fmt.Sprintf("must be at least %d characters", minDescriptionLen)
	}
	if !domain.ValidDepartment(input.Department) {
		details["department"] = "unknown department"
	}
	switch input.Priority {
	case domain.TicketPriorityLow, domain.TicketPriorityMedium, domain.TicketPriorityHigh:
	default:
		details["priority"] = "unknown priority"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid ticket input", details)
	}
	return nil
}

// requireTicketAccess mirrors the read-side rule: only the requester or an
// admin may see or mutate a ticket.
func requireTicketAccess(actor domain.Actor, ticket *domain.Ticket) error {
	if actor.IsAdmin || ticket.Requester.UserID == actor.UserID {
		return nil
	}
	return apperrors.NewForbidden("access denied")
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, s.newEvent(event)); err != nil {
		s.logger.Warn("event publication failed",
			zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func (s *TicketService) newEvent(event events.Event) events.Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	return event
}

func eventActor(actor domain.Actor) events.Actor {
	return events.Actor{UserID: actor.UserID, IsAdmin: actor.IsAdmin}
}

// stringPreview truncates to at most max bytes, backing up to a rune
// boundary so the preview stays valid UTF-8.
func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	cut := max
	if max > 3 {
		cut = max - 3
	}
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	if max <= 3 {
		return body[:cut]
	}
	return body[:cut] + "..."
}
