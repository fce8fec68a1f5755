package worker

import (
	"strings"
	"testing"

	"github.com/ticketflow/helpdesk/internal/persistence"
)

func TestRenderTaskNewTicket(t *testing.T) {
	msg, err := renderTask(&persistence.NotificationTask{
		Kind:          persistence.NotificationNewTicket,
		TicketNumber:  12,
		Subject:       "VPN broken",
		Department:    "IT",
		Priority:      "HIGH",
		RequesterName: "Alice",
		Description:   "No connection.",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.Subject != "New ticket #12: VPN broken" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
}

func TestRenderTaskStatusUpdate(t *testing.T) {
	msg, err := renderTask(&persistence.NotificationTask{
		Kind:         persistence.NotificationStatusUpdate,
		TicketNumber: 12,
		Subject:      "VPN broken",
		NewStatus:    "CLOSED",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(msg.Subject, "CLOSED") {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
}

func TestRenderTaskRejectsUnknownKind(t *testing.T) {
	if _, err := renderTask(&persistence.NotificationTask{Kind: "password-reset"}); err == nil {
		t.Fatal("unknown kinds must not render as a new-ticket email")
	}
}
