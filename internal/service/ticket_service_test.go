package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ticketflow/helpdesk/internal/domain"
	"github.com/ticketflow/helpdesk/internal/events"
	"github.com/ticketflow/helpdesk/internal/observability"
	"github.com/ticketflow/helpdesk/internal/repository"
	"github.com/ticketflow/helpdesk/internal/storage"
	apperrors "github.com/ticketflow/helpdesk/pkg/util"
)

// fakeTicketRepo is an in-memory TicketRepository with the same conflict
// semantics as the Postgres implementation: failures injected via failNext
// surface as transient errors, exactly like an aborted serializable
// transaction.
type fakeTicketRepo struct {
	mu       sync.Mutex
	tickets  map[string]*domain.Ticket
	nextID   int
	failNext int
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]*domain.Ticket)}
}

func (r *fakeTicketRepo) CreateWithNextNumber(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext > 0 {
		r.failNext--
		return apperrors.NewUnavailable("store transaction conflict", nil)
	}
	var highest int64
	for _, t := range r.tickets {
		if t.TicketNumber > highest {
			highest = t.TicketNumber
		}
	}
	r.nextID++
	ticket.ID = fmt.Sprintf("t-%03d", r.nextID)
	ticket.TicketNumber = highest + 1
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	clone := *ticket
	return &clone, nil
}

func (r *fakeTicketRepo) Mutate(ctx context.Context, id string, apply func(*domain.Ticket) error) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	clone := *ticket
	clone.Comments = append([]domain.Comment(nil), ticket.Comments...)
	if err := apply(&clone); err != nil {
		if err == repository.ErrNoChange {
			return &clone, nil
		}
		return nil, err
	}
	stored := clone
	r.tickets[id] = &stored
	result := clone
	return &result, nil
}

func (r *fakeTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.tickets {
		if filter.RequesterID != nil && t.Requester.UserID != *filter.RequesterID {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

type fakeUploader struct {
	attachment *domain.Attachment
	err        error
	calls      int
}

func (u *fakeUploader) Upload(ctx context.Context, file storage.File) (*domain.Attachment, error) {
	u.calls++
	if u.err != nil {
		return nil, u.err
	}
	if u.attachment != nil {
		return u.attachment, nil
	}
	return &domain.Attachment{URL: "https://files.example/" + file.Name, Name: file.Name}, nil
}

func newTestService(t *testing.T, repo repository.TicketRepository, dispatcher events.Dispatcher) *TicketService {
	t.Helper()
	svc := NewTicketService(TicketDependencies{
		TicketRepo: repo,
		Uploader:   &fakeUploader{},
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
		Metrics:    observability.NewMetrics(),
	})
	svc.createBackoff = time.Millisecond
	return svc
}

var (
	requester = domain.Actor{UserID: "u-1", UserName: "Alice", UserEmail: "alice@example.com"}
	stranger  = domain.Actor{UserID: "u-2", UserName: "Bob", UserEmail: "bob@example.com"}
	admin     = domain.Actor{UserID: "u-9", UserName: "Root", UserEmail: "root@example.com", IsAdmin: true}
)

func validInput() TicketCreateInput {
	return TicketCreateInput{
		Subject:     "Printer is down",
		Description: "The third-floor printer refuses every job.",
		Department:  domain.DepartmentIT,
		Priority:    domain.TicketPriorityHigh,
	}
}

func TestCreateTicketAssignsSequentialNumbers(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(t, repo, nil)

	var numbers []int64
	for i := 0; i < 5; i++ {
		ticket, err := svc.CreateTicket(context.Background(), requester, validInput())
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		numbers = append(numbers, ticket.TicketNumber)
	}
	for i, n := range numbers {
		if n != int64(i+1) {
			t.Fatalf("expected number %d at position %d, got %d", i+1, i, n)
		}
	}
}

func TestCreateTicketRetriesTransientConflicts(t *testing.T) {
	repo := newFakeTicketRepo()
	repo.failNext = 2
	svc := newTestService(t, repo, nil)

	ticket, err := svc.CreateTicket(context.Background(), requester, validInput())
	if err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if ticket.TicketNumber != 1 {
		t.Fatalf("expected number 1, got %d", ticket.TicketNumber)
	}
}

func TestCreateTicketGivesUpAfterAttemptBound(t *testing.T) {
	repo := newFakeTicketRepo()
	repo.failNext = 10
	svc := newTestService(t, repo, nil)

	if _, err := svc.CreateTicket(context.Background(), requester, validInput()); err == nil {
		t.Fatal("expected error when conflicts never stop")
	} else if !apperrors.IsTransient(err) {
		t.Fatalf("expected transient error to surface, got %v", err)
	}
	if len(repo.tickets) != 0 {
		t.Fatalf("no ticket should exist, got %d", len(repo.tickets))
	}
}

func TestCreateTicketValidation(t *testing.T) {
	svc := newTestService(t, newFakeTicketRepo(), nil)

	cases := map[string]TicketCreateInput{
		"short subject": func() TicketCreateInput {
			in := validInput()
			in.Subject = "Hey"
			return in
		}(),
		"short description": func() TicketCreateInput {
			in := validInput()
			in.Description = "nope"
			return in
		}(),
		"bad department": func() TicketCreateInput {
			in := validInput()
			in.Department = "WAREHOUSE"
			return in
		}(),
		"bad priority": func() TicketCreateInput {
			in := validInput()
			in.Priority = "URGENT"
			return in
		}(),
	}
	for name, input := range cases {
		if _, err := svc.CreateTicket(context.Background(), requester, input); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestCreateTicketConcurrentNumbersUnique(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(t, repo, nil)

	const writers = 20
	numbers := make(chan int64, writers)
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := svc.CreateTicket(context.Background(), requester, validInput())
			if err != nil {
				errs <- err
				return
			}
			numbers <- ticket.TicketNumber
		}()
	}
	wg.Wait()
	close(numbers)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent create: %v", err)
	}
	seen := make(map[int64]bool, writers)
	for n := range numbers {
		if seen[n] {
			t.Fatalf("ticket number %d assigned twice", n)
		}
		seen[n] = true
	}
	if len(seen) != writers {
		t.Fatalf("expected %d distinct numbers, got %d", writers, len(seen))
	}
	for n := int64(1); n <= writers; n++ {
		if !seen[n] {
			t.Fatalf("expected a gapless 1..%d sequence, missing %d", writers, n)
		}
	}
}

func TestCreateTicketWithFileValidatesBeforeUpload(t *testing.T) {
	uploader := &fakeUploader{}
	svc := newTestService(t, newFakeTicketRepo(), nil)
	svc.uploader = uploader

	input := validInput()
	input.Subject = "Hey"
	_, err := svc.CreateTicketWithFile(context.Background(), requester, input, storage.File{
		Name: "shot.png", ContentType: "image/png", Content: []byte{1},
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if uploader.calls != 0 {
		t.Fatalf("invalid input must not reach the attachment store, got %d upload calls", uploader.calls)
	}
}

func TestCreateTicketRequiresIdentity(t *testing.T) {
	svc := newTestService(t, newFakeTicketRepo(), nil)
	if _, err := svc.CreateTicket(context.Background(), domain.Actor{}, validInput()); err == nil {
		t.Fatal("expected error for anonymous creation")
	}
}

func mustCreate(t *testing.T, svc *TicketService, actor domain.Actor) *domain.Ticket {
	t.Helper()
	ticket, err := svc.CreateTicket(context.Background(), actor, validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return ticket
}

func TestUpdateStatusAdminMaySetAny(t *testing.T) {
	svc := newTestService(t, newFakeTicketRepo(), nil)
	ticket := mustCreate(t, svc, requester)

	for _, status := range []domain.TicketStatus{
		domain.TicketStatusInProgress,
		domain.TicketStatusClosed,
		domain.TicketStatusOpen,
	} {
		result, err := svc.UpdateStatus(context.Background(), admin, ticket.ID, status)
		if err != nil {
			t.Fatalf("admin set %s: %v", status, err)
		}
		if result.Ticket.Status != status {
			t.Fatalf("expected %s, got %s", status, result.Ticket.Status)
		}
	}
}

func TestUpdateStatusRequesterMayOnlyClose(t *testing.T) {
	svc := newTestService(t, newFakeTicketRepo(), nil)
	ticket := mustCreate(t, svc, requester)

	if _, err := svc.UpdateStatus(context.Background(), requester, ticket.ID, domain.TicketStatusInProgress); err == nil {
		t.Fatal("requester must not set IN_PROGRESS")
	}
	result, err := svc.UpdateStatus(context.Background(), requester, ticket.ID, domain.TicketStatusClosed)
	if err != nil {
		t.Fatalf("requester close: %v", err)
	}
	if result.Ticket.Status != domain.TicketStatusClosed {
		t.Fatalf("expected CLOSED, got %s", result.Ticket.Status)
	}
}

func TestUpdateStatusStrangerDenied(t *testing.T) {
	svc := newTestService(t, newFakeTicketRepo(), nil)
	ticket := mustCreate(t, svc, requester)

	if _, err := svc.UpdateStatus(context.Background(), stranger, ticket.ID, domain.TicketStatusClosed); err == nil {
		t.Fatal("stranger must not close another user's ticket")
	}
}

func TestUpdateStatusClosedByRecordedOnce(t *testing.T) {
	svc := newTestService(t, newFakeTicketRepo(), nil)
	ticket := mustCreate(t, svc, requester)

	if _, err := svc.UpdateStatus(context.Background(), requester, ticket.ID, domain.TicketStatusClosed); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), admin, ticket.ID, domain.TicketStatusOpen); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	result, err := svc.UpdateStatus(context.Background(), admin, ticket.ID, domain.TicketStatusClosed)
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if result.Ticket.ClosedBy == nil {
		t.Fatal("closed_by missing")
	}
	if result.Ticket.ClosedBy.UserID != requester.UserID {
		t.Fatalf("closed_by should keep the first closer, got %s", result.Ticket.ClosedBy.UserID)
	}
}

func TestUpdateStatusNoOpSkipsNotification(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	published := 0
	dispatcher.Subscribe(events.EventTicketStatusChanged, func(ctx context.Context, e events.Event) error {
		published++
		return nil
	})
	svc := newTestService(t, newFakeTicketRepo(), dispatcher)
	ticket := mustCreate(t, svc, requester)

	result, err := svc.UpdateStatus(context.Background(), admin, ticket.ID, domain.TicketStatusOpen)
	if err != nil {
		t.Fatalf("no-op update: %v", err)
	}
	if result.Ticket.Status != domain.TicketStatusOpen {
		t.Fatalf("expected OPEN, got %s", result.Ticket.Status)
	}
	if published != 0 {
		t.Fatalf("no-op must not publish, got %d events", published)
	}
}

func TestUpdateStatusNoOpAllowedForRequester(t *testing.T) {
	svc := newTestService(t, newFakeTicketRepo(), nil)
	ticket := mustCreate(t, svc, requester)

	result, err := svc.UpdateStatus(context.Background(), requester, ticket.ID, domain.TicketStatusOpen)
	if err != nil {
		t.Fatalf("re-submitting the current status must succeed for the requester: %v", err)
	}
	if result.Ticket.Status != domain.TicketStatusOpen {
		t.Fatalf("expected OPEN, got %s", result.Ticket.Status)
	}
}

func TestUpdateStatusNotificationFailureIsWarning(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	dispatcher.Subscribe(events.EventTicketStatusChanged, func(ctx context.Context, e events.Event) error {
		return apperrors.NewUnavailable("queue down", nil)
	})
	svc := newTestService(t, newFakeTicketRepo(), dispatcher)
	ticket := mustCreate(t, svc, requester)

	result, err := svc.UpdateStatus(context.Background(), admin, ticket.ID, domain.TicketStatusClosed)
	if err != nil {
		t.Fatalf("status change must commit despite queue failure: %v", err)
	}
	if result.NotificationWarning == "" {
		t.Fatal("expected a notification warning")
	}
	got, err := svc.GetTicket(context.Background(), admin, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.TicketStatusClosed {
		t.Fatalf("status must be durable, got %s", got.Status)
	}
}

func TestAddCommentAppendsInOrder(t *testing.T) {
	svc := newTestService(t, newFakeTicketRepo(), nil)
	ticket := mustCreate(t, svc, requester)

	for _, text := range []string{"first", "second", "third"} {
		if _, err := svc.AddComment(context.Background(), requester, ticket.ID, text); err != nil {
			t.Fatalf("comment %q: %v", text, err)
		}
	}
	got, err := svc.GetTicket(context.Background(), requester, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Comments) != 3 {
		t.Fatalf("expected 3 comments, got %d", len(got.Comments))
	}
	for i, want := range []string{"first", "second", "third"} {
		if got.Comments[i].Text != want {
			t.Fatalf("comment %d: expected %q, got %q", i, want, got.Comments[i].Text)
		}
	}
}

func TestAddCommentRejectedOnClosedTicket(t *testing.T) {
	svc := newTestService(t, newFakeTicketRepo(), nil)
	ticket := mustCreate(t, svc, requester)
	if _, err := svc.UpdateStatus(context.Background(), requester, ticket.ID, domain.TicketStatusClosed); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.AddComment(context.Background(), requester, ticket.ID, "hello?"); err == nil {
		t.Fatal("expected rejection on closed ticket")
	}
	if _, err := svc.AddComment(context.Background(), admin, ticket.ID, "hello?"); err == nil {
		t.Fatal("closed tickets reject comments from admins too")
	}
}

func TestAddCommentRequiresText(t *testing.T) {
	svc := newTestService(t, newFakeTicketRepo(), nil)
	ticket := mustCreate(t, svc, requester)
	if _, err := svc.AddComment(context.Background(), requester, ticket.ID, "   "); err == nil {
		t.Fatal("expected validation error for blank comment")
	}
}

func TestAddAttachmentCommentRecordsFile(t *testing.T) {
	svc := newTestService(t, newFakeTicketRepo(), nil)
	ticket := mustCreate(t, svc, requester)

	got, err := svc.AddAttachmentComment(context.Background(), requester, ticket.ID, storage.File{
		Name:        "report.pdf",
		ContentType: "application/pdf",
		Content:     []byte("%PDF-"),
	})
	if err != nil {
		t.Fatalf("attachment comment: %v", err)
	}
	last := got.Comments[len(got.Comments)-1]
	if !last.IsAttachment || last.AttachmentName != "report.pdf" || last.AttachmentURL == "" {
		t.Fatalf("attachment comment malformed: %+v", last)
	}
}

func TestAddAttachmentCommentUploadFailureLeavesThreadUntouched(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(t, repo, nil)
	svc.uploader = &fakeUploader{err: apperrors.NewUnavailable("store down", nil)}
	ticket := mustCreate(t, svc, requester)

	if _, err := svc.AddAttachmentComment(context.Background(), requester, ticket.ID, storage.File{
		Name: "x.png", ContentType: "image/png", Content: []byte{1},
	}); err == nil {
		t.Fatal("expected upload failure to surface")
	}
	got, _ := svc.GetTicket(context.Background(), requester, ticket.ID)
	if len(got.Comments) != 0 {
		t.Fatalf("failed upload must not append a comment, got %d", len(got.Comments))
	}
}

func TestGetTicketAccessControl(t *testing.T) {
	svc := newTestService(t, newFakeTicketRepo(), nil)
	ticket := mustCreate(t, svc, requester)

	if _, err := svc.GetTicket(context.Background(), stranger, ticket.ID); err == nil {
		t.Fatal("stranger must not read another user's ticket")
	}
	if _, err := svc.GetTicket(context.Background(), admin, ticket.ID); err != nil {
		t.Fatalf("admin read: %v", err)
	}
}

func TestListAllTicketsAdminOnly(t *testing.T) {
	svc := newTestService(t, newFakeTicketRepo(), nil)
	mustCreate(t, svc, requester)

	if _, err := svc.ListAllTickets(context.Background(), requester, TicketListFilter{}); err == nil {
		t.Fatal("non-admin must not list all tickets")
	}
	tickets, err := svc.ListAllTickets(context.Background(), admin, TicketListFilter{})
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if len(tickets) != 1 {
		t.Fatalf("expected 1 ticket, got %d", len(tickets))
	}
}

func TestStringPreviewKeepsRuneBoundaries(t *testing.T) {
	body := strings.Repeat("é", 100)
	preview := stringPreview(body, 20)
	if !utf8.ValidString(preview) {
		t.Fatalf("preview is not valid UTF-8: %q", preview)
	}
	if len(preview) > 20 {
		t.Fatalf("preview exceeds the byte limit: %d bytes", len(preview))
	}
	if stringPreview("short", 120) != "short" {
		t.Fatal("short bodies must pass through untouched")
	}
}

func TestListTicketsScopedToRequester(t *testing.T) {
	svc := newTestService(t, newFakeTicketRepo(), nil)
	mustCreate(t, svc, requester)
	mustCreate(t, svc, stranger)

	tickets, err := svc.ListTickets(context.Background(), requester, TicketListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tickets) != 1 || tickets[0].Requester.UserID != requester.UserID {
		t.Fatalf("expected only requester tickets, got %d", len(tickets))
	}
}
