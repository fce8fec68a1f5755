package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ticketflow/helpdesk/internal/api/dto"
	"github.com/ticketflow/helpdesk/internal/auth"
	"github.com/ticketflow/helpdesk/internal/domain"
	"github.com/ticketflow/helpdesk/internal/service"
	"github.com/ticketflow/helpdesk/internal/storage"
	apperrors "github.com/ticketflow/helpdesk/pkg/util"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets. Accepts JSON, or multipart form data with an
// optional "attachment" file part.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}

	var req dto.CreateTicketRequest
	var attachment *storage.File
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		req = dto.CreateTicketRequest{
			Subject:     c.FormValue("subject"),
			Description: c.FormValue("description"),
			Department:  c.FormValue("department"),
			Priority:    c.FormValue("priority"),
		}
		file, err := readFormFile(c, "attachment")
		if err != nil {
			return err
		}
		attachment = file
	} else if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	priority, ok := domain.ParseTicketPriority(req.Priority)
	if !ok {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": req.Priority})
	}

	input := service.TicketCreateInput{
		Subject:     req.Subject,
		Description: req.Description,
		Department:  domain.Department(strings.ToUpper(strings.TrimSpace(req.Department))),
		Priority:    priority,
		Deadline:    req.Deadline,
	}
	var err error
	var ticket *domain.Ticket
	if attachment != nil {
		ticket, err = h.service.CreateTicketWithFile(c.UserContext(), principal.Actor, input, *attachment)
	} else {
		ticket, err = h.service.CreateTicket(c.UserContext(), principal.Actor, input)
	}
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// ListTickets GET /tickets returns the caller's own tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	tickets, err := h.service.ListTickets(c.UserContext(), principal.Actor, parseTicketQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummaries(tickets)})
}

// ListAllTickets GET /admin/tickets returns every ticket.
func (h *TicketsHandler) ListAllTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	tickets, err := h.service.ListAllTickets(c.UserContext(), principal.Actor, parseTicketQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummaries(tickets)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	ticket, err := h.service.GetTicket(c.UserContext(), principal.Actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// UpdateStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	status, ok := domain.ParseTicketStatus(req.Status)
	if !ok {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": req.Status})
	}

	result, err := h.service.UpdateStatus(c.UserContext(), principal.Actor, c.Params("id"), status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.StatusUpdateResponse{
		Ticket:  ticketSummary(result.Ticket),
		Warning: result.NotificationWarning,
	}})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.AddComment(c.UserContext(), principal.Actor, c.Params("id"), req.Text)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// AddAttachment POST /tickets/:id/attachments uploads a file and appends it
// to the thread as an attachment comment.
func (h *TicketsHandler) AddAttachment(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	file, err := readFormFile(c, "file")
	if err != nil {
		return err
	}
	if file == nil {
		return apperrors.NewValidationError("file part required", nil)
	}
	ticket, err := h.service.AddAttachmentComment(c.UserContext(), principal.Actor, c.Params("id"), *file)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// readFormFile loads an optional multipart file part into memory. A missing
// part returns (nil, nil).
func readFormFile(c *fiber.Ctx, field string) (*storage.File, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, nil
	}
	if header.Size > storage.MaxFileSize {
		return nil, apperrors.NewValidationError("file exceeds the 10 MB limit",
			map[string]any{"size_bytes": header.Size})
	}
	src, err := header.Open()
	if err != nil {
		return nil, apperrors.NewValidationError("unreadable file part", nil)
	}
	defer src.Close()
	content, err := io.ReadAll(src)
	if err != nil {
		return nil, apperrors.NewValidationError("unreadable file part", nil)
	}
	return &storage.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}

func parseTicketQuery(c *fiber.Ctx) service.TicketListFilter {
	filter := service.TicketListFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			if status, ok := domain.ParseTicketStatus(part); ok {
				filter.Statuses = append(filter.Statuses, status)
			}
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			if priority, ok := domain.ParseTicketPriority(part); ok {
				filter.Priorities = append(filter.Priorities, priority)
			}
		}
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummaries(tickets []domain.Ticket) []dto.TicketSummary {
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return items
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:           ticket.ID,
		TicketNumber: ticket.TicketNumber,
		Subject:      ticket.Subject,
		Department:   ticket.Department,
		Priority:     ticket.Priority,
		Status:       ticket.Status,
		CreatedAt:    ticket.CreatedAt,
		UpdatedAt:    ticket.UpdatedAt,
		Deadline:     ticket.Deadline,
	}
}

func ticketDetail(ticket *domain.Ticket) dto.TicketDetailResponse {
	comments := make([]dto.CommentResponse, 0, len(ticket.Comments))
	for _, comment := range ticket.Comments {
		comments = append(comments, dto.CommentResponse{
			Text:           comment.Text,
			AuthorID:       comment.AuthorID,
			AuthorName:     comment.AuthorName,
			CreatedAt:      comment.CreatedAt,
			IsAttachment:   comment.IsAttachment,
			AttachmentURL:  comment.AttachmentURL,
			AttachmentName: comment.AttachmentName,
		})
	}
	detail := dto.TicketDetailResponse{
		ID:            ticket.ID,
		TicketNumber:  ticket.TicketNumber,
		Subject:       ticket.Subject,
		Description:   ticket.Description,
		Department:    ticket.Department,
		Priority:      ticket.Priority,
		Status:        ticket.Status,
		RequesterID:   ticket.Requester.UserID,
		RequesterName: ticket.Requester.UserName,
		Comments:      comments,
		Deadline:      ticket.Deadline,
		CreatedAt:     ticket.CreatedAt,
		UpdatedAt:     ticket.UpdatedAt,
	}
	if ticket.Attachment != nil {
		detail.Attachment = &dto.AttachmentResponse{
			URL:  ticket.Attachment.URL,
			Name: ticket.Attachment.Name,
		}
	}
	if ticket.ClosedBy != nil {
		detail.ClosedBy = &dto.ClosedByResponse{
			UserID:   ticket.ClosedBy.UserID,
			UserName: ticket.ClosedBy.UserName,
			ClosedAt: ticket.ClosedBy.ClosedAt,
		}
	}
	return detail
}
