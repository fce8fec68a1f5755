package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketflow/helpdesk/internal/domain"
	apperrors "github.com/ticketflow/helpdesk/pkg/util"
)

// ErrNoChange signals from a Mutate callback that the ticket is already in
// the desired state; the transaction is abandoned and the document is left
// byte-for-byte untouched.
var ErrNoChange = errors.New("no change")

// TicketFilter captures listing parameters.
type TicketFilter struct {
	RequesterID *string
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	Departments []domain.Department
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence. CreateWithNextNumber and
// Mutate run inside serializable transactions; when two writers race, the
// store aborts one with a conflict signal surfaced as a transient error so
// the caller can retry the full read-compute-write sequence.
type TicketRepository interface {
	CreateWithNextNumber(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	Mutate(ctx context.Context, id string, apply func(*domain.Ticket) error) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_number, subject, description, department, priority, status,
               requester_user_id, requester_name, requester_email,
               attachment_url, attachment_name, comments, closed_by, deadline,
               created_at, updated_at`

// CreateWithNextNumber assigns ticket_number = max+1 and inserts the ticket
// in one serializable transaction. Concurrent creations observing the same
// maximum abort all but one writer.
func (r *ticketRepository) CreateWithNextNumber(ctx context.Context, ticket *domain.Ticket) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return mapStoreError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var highest int64
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(ticket_number), 0) FROM tickets`,
	).Scan(&highest); err != nil {
		return mapStoreError(err)
	}
	ticket.TicketNumber = highest + 1

	comments, err := json.Marshal(commentsOrEmpty(ticket.Comments))
	if err != nil {
		return err
	}

	var attachmentURL, attachmentName *string
	if ticket.Attachment != nil {
		attachmentURL = &ticket.Attachment.URL
		attachmentName = &ticket.Attachment.Name
	}

	const query = `
        INSERT INTO tickets (ticket_number, subject, description, department, priority, status,
                             requester_user_id, requester_name, requester_email,
                             attachment_url, attachment_name, comments, deadline)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, query,
		ticket.TicketNumber,
		ticket.Subject,
		ticket.Description,
		ticket.Department,
		ticket.Priority,
		ticket.Status,
		ticket.Requester.UserID,
		ticket.Requester.UserName,
		ticket.Requester.UserEmail,
		attachmentURL,
		attachmentName,
		comments,
		ticket.Deadline,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
		return mapStoreError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapStoreError(err)
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		return nil, mapStoreError(err)
	}
	return ticket, nil
}

// Mutate applies fn to the freshly-read ticket inside a serializable
// transaction and writes the mutable fields back. Errors returned by fn
// abort the transaction and pass through unchanged.
func (r *ticketRepository) Mutate(ctx context.Context, id string, apply func(*domain.Ticket) error) (*domain.Ticket, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, mapStoreError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		return nil, mapStoreError(err)
	}

	if err := apply(ticket); err != nil {
		if errors.Is(err, ErrNoChange) {
			return ticket, nil
		}
		return nil, err
	}

	comments, err := json.Marshal(commentsOrEmpty(ticket.Comments))
	if err != nil {
		return nil, err
	}
	var closedBy []byte
	if ticket.ClosedBy != nil {
		if closedBy, err = json.Marshal(ticket.ClosedBy); err != nil {
			return nil, err
		}
	}

	const update = `
        UPDATE tickets SET status=$1, priority=$2, comments=$3, closed_by=$4, updated_at=$5
        WHERE id=$6`
	cmd, err := tx.Exec(ctx, update,
		ticket.Status,
		ticket.Priority,
		comments,
		closedBy,
		ticket.UpdatedAt,
		ticket.ID,
	)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if cmd.RowsAffected() == 0 {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapStoreError(err)
	}
	return ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_user_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Departments) > 0 {
		placeholders := make([]string, len(filter.Departments))
		for i, dept := range filter.Departments {
			args = append(args, dept)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("department IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY ticket_number DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapStoreError(err)
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStoreError(err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		ticket         domain.Ticket
		attachmentURL  *string
		attachmentName *string
		comments       []byte
		closedBy       []byte
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.Subject,
		&ticket.Description,
		&ticket.Department,
		&ticket.Priority,
		&ticket.Status,
		&ticket.Requester.UserID,
		&ticket.Requester.UserName,
		&ticket.Requester.UserEmail,
		&attachmentURL,
		&attachmentName,
		&comments,
		&closedBy,
		&ticket.Deadline,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if attachmentURL != nil && *attachmentURL != "" {
		ticket.Attachment = &domain.Attachment{URL: *attachmentURL}
		if attachmentName != nil {
			ticket.Attachment.Name = *attachmentName
		}
	}
	if len(comments) > 0 {
		if err := json.Unmarshal(comments, &ticket.Comments); err != nil {
			return nil, err
		}
	}
	if len(closedBy) > 0 {
		var cb domain.ClosedBy
		if err := json.Unmarshal(closedBy, &cb); err != nil {
			return nil, err
		}
		ticket.ClosedBy = &cb
	}
	return &ticket, nil
}

func commentsOrEmpty(comments []domain.Comment) []domain.Comment {
	if comments == nil {
		return []domain.Comment{}
	}
	return comments
}

// mapStoreError classifies pgx failures. Serialization aborts (40001) and
// duplicate ticket numbers (23505) are the conflict signal of the racing
// writer that lost; both are transient and safe to retry.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return apperrors.NewUnavailable("store transaction conflict", err)
		case "23505":
			return apperrors.NewUnavailable("ticket number already taken", err)
		case "57P01", "53300", "08006", "08003":
			return apperrors.NewUnavailable("store unavailable", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewUnavailable("store timeout", err)
	}
	return err
}
