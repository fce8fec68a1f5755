package domain

import "testing"

func TestParseTicketStatus(t *testing.T) {
	cases := map[string]TicketStatus{
		"open":         TicketStatusOpen,
		"Aberto":       TicketStatusOpen,
		"IN_PROGRESS":  TicketStatusInProgress,
		"Em Andamento": TicketStatusInProgress,
		"closed":       TicketStatusClosed,
		"Fechado":      TicketStatusClosed,
		" Closed ":     TicketStatusClosed,
	}
	for raw, want := range cases {
		got, ok := ParseTicketStatus(raw)
		if !ok || got != want {
			t.Errorf("ParseTicketStatus(%q) = %q, %v; want %q", raw, got, ok, want)
		}
	}
	if _, ok := ParseTicketStatus("pending"); ok {
		t.Error("unknown status must not parse")
	}
}

func TestParseTicketPriority(t *testing.T) {
	cases := map[string]TicketPriority{
		"low":    TicketPriorityLow,
		"Baixa":  TicketPriorityLow,
		"Média":  TicketPriorityMedium,
		"media":  TicketPriorityMedium,
		"MEDIUM": TicketPriorityMedium,
		"Alta":   TicketPriorityHigh,
	}
	for raw, want := range cases {
		got, ok := ParseTicketPriority(raw)
		if !ok || got != want {
			t.Errorf("ParseTicketPriority(%q) = %q, %v; want %q", raw, got, ok, want)
		}
	}
	if _, ok := ParseTicketPriority("urgent"); ok {
		t.Error("unknown priority must not parse")
	}
}

func TestValidDepartment(t *testing.T) {
	for _, dept := range Departments() {
		if !ValidDepartment(dept) {
			t.Errorf("%s should be valid", dept)
		}
	}
	if ValidDepartment("WAREHOUSE") {
		t.Error("unknown department should be invalid")
	}
}
