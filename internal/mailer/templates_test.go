package mailer

import (
	"strings"
	"testing"
)

func TestRenderNewTicket(t *testing.T) {
	msg, err := RenderNewTicket(NewTicketData{
		TicketNumber:  42,
		Subject:       "VPN broken",
		Department:    "IT",
		Priority:      "HIGH",
		RequesterName: "Alice",
		Description:   "Cannot connect since this morning.",
		DashboardURL:  "https://helpdesk.example/dashboard",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.Subject != "New ticket #42: VPN broken" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	for _, want := range []string{"#42", "VPN broken", "Alice", "https://helpdesk.example/dashboard"} {
		if !strings.Contains(msg.HTML, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestRenderStatusUpdate(t *testing.T) {
	msg, err := RenderStatusUpdate(StatusUpdateData{
		TicketNumber:  7,
		Subject:       "VPN broken",
		NewStatus:     "CLOSED",
		RequesterName: "Alice",
		DashboardURL:  "https://helpdesk.example/dashboard",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.Subject != "Ticket #7 status changed to CLOSED" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "CLOSED") || !strings.Contains(msg.HTML, "Hello Alice") {
		t.Fatal("body missing status or greeting")
	}
}

func TestTemplatesEscapeHTML(t *testing.T) {
	msg, err := RenderNewTicket(NewTicketData{
		TicketNumber: 1,
		Subject:      "<script>alert(1)</script>",
		Description:  "desc",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(msg.HTML, "<script>") {
		t.Fatal("user input must be escaped")
	}
}
