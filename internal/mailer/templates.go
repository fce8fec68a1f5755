package mailer

import (
	"fmt"
	"html/template"
	"strings"
)

// NewTicketData feeds the new-ticket notification template.
type NewTicketData struct {
	TicketNumber  int64
	Subject       string
	Department    string
	Priority      string
	RequesterName string
	Description   string
	DashboardURL  string
}

// StatusUpdateData feeds the status-update notification template.
type StatusUpdateData struct {
	TicketNumber  int64
	Subject       string
	NewStatus     string
	RequesterName string
	DashboardURL  string
}

var newTicketTmpl = template.Must(template.New("new-ticket").Parse(`
<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto;padding:20px;background-color:#f9f9f9;border-radius:5px;">
  <div style="background-color:#0070f3;color:white;padding:15px;border-radius:5px 5px 0 0;text-align:center;">
    <h1 style="margin:0;font-size:24px;">New Ticket Created</h1>
  </div>
  <div style="background-color:white;padding:20px;border-radius:0 0 5px 5px;">
    <p style="font-size:16px;color:#333;">A new ticket was created in TicketFlow.</p>
    <div style="background-color:#f5f5f5;padding:15px;border-radius:5px;margin-bottom:20px;">
      <p style="margin:5px 0;font-size:14px;"><strong>Ticket:</strong> #{{.TicketNumber}}</p>
      <p style="margin:5px 0;font-size:14px;"><strong>Subject:</strong> {{.Subject}}</p>
      <p style="margin:5px 0;font-size:14px;"><strong>Department:</strong> {{.Department}}</p>
      <p style="margin:5px 0;font-size:14px;"><strong>Priority:</strong> {{.Priority}}</p>
      <p style="margin:5px 0;font-size:14px;"><strong>Requester:</strong> {{.RequesterName}}</p>
      <p style="margin:10px 0 5px;font-size:14px;"><strong>Description:</strong></p>
      <p style="margin:5px 0;font-size:14px;padding:10px;background-color:white;border-radius:3px;">{{.Description}}</p>
    </div>
    <div style="text-align:center;margin-top:30px;">
      <a href="{{.DashboardURL}}" style="background-color:#0070f3;color:white;padding:10px 20px;border-radius:5px;text-decoration:none;">Open Dashboard</a>
    </div>
  </div>
</div>`))

var statusUpdateTmpl = template.Must(template.New("status-update").Parse(`
<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto;padding:20px;background-color:#f9f9f9;border-radius:5px;">
  <div style="background-color:#0070f3;color:white;padding:15px;border-radius:5px 5px 0 0;text-align:center;">
    <h1 style="margin:0;font-size:24px;">Ticket Status Update</h1>
  </div>
  <div style="background-color:white;padding:20px;border-radius:0 0 5px 5px;">
    <p style="font-size:16px;color:#333;">Hello {{.RequesterName}},</p>
    <p style="font-size:16px;color:#333;">The status of your ticket was updated.</p>
    <div style="background-color:#f5f5f5;padding:15px;border-radius:5px;margin-bottom:20px;">
      <p style="margin:5px 0;font-size:14px;"><strong>Ticket:</strong> #{{.TicketNumber}}</p>
      <p style="margin:5px 0;font-size:14px;"><strong>Subject:</strong> {{.Subject}}</p>
      <p style="margin:5px 0;font-size:14px;"><strong>New Status:</strong> {{.NewStatus}}</p>
    </div>
    <div style="text-align:center;margin-top:30px;">
      <a href="{{.DashboardURL}}" style="background-color:#0070f3;color:white;padding:10px 20px;border-radius:5px;text-decoration:none;">Open Dashboard</a>
    </div>
  </div>
</div>`))

// RenderNewTicket produces the subject and body for a new-ticket notification.
func RenderNewTicket(data NewTicketData) (Message, error) {
	var body strings.Builder
	if err := newTicketTmpl.Execute(&body, data); err != nil {
		return Message{}, err
	}
	return Message{
		Subject: fmt.Sprintf("New ticket #%d: %s", data.TicketNumber, data.Subject),
		HTML:    body.String(),
	}, nil
}

// RenderStatusUpdate produces the subject and body for a status-update notification.
func RenderStatusUpdate(data StatusUpdateData) (Message, error) {
	var body strings.Builder
	if err := statusUpdateTmpl.Execute(&body, data); err != nil {
		return Message{}, err
	}
	return Message{
		Subject: fmt.Sprintf("Ticket #%d status changed to %s", data.TicketNumber, data.NewStatus),
		HTML:    body.String(),
	}, nil
}
