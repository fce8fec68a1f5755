package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/ticketflow/helpdesk/internal/config"
	"github.com/ticketflow/helpdesk/internal/events"
	"github.com/ticketflow/helpdesk/internal/persistence"
)

// NotificationService turns domain events into queued email tasks. Delivery
// itself happens in the background worker; this layer only enqueues, so the
// request path never waits on the email provider.
type NotificationService struct {
	dispatcher events.Dispatcher
	outbox     *persistence.Outbox
	logger     *zap.Logger
	cfg        config.MailerConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, outbox *persistence.Outbox, logger *zap.Logger, cfg config.MailerConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		outbox:     outbox,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	if n.cfg.AdminInbox == "" {
		n.logger.Debug("no admin inbox configured; skipping new-ticket notification")
		return nil
	}
	err := n.outbox.Enqueue(ctx, persistence.NotificationTask{
		Kind:          persistence.NotificationNewTicket,
		To:            n.cfg.AdminInbox,
		TicketNumber:  payload.TicketNumber,
		Subject:       payload.Subject,
		Department:    string(payload.Department),
		Priority:      string(payload.Priority),
		RequesterName: payload.RequesterName,
		Description:   payload.Description,
		DashboardURL:  n.cfg.DashboardURL,
	})
	if err != nil {
		n.logger.Warn("failed to enqueue new-ticket notification",
			zap.String("ticket_id", event.TicketID), zap.Error(err))
	}
	return err
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return nil
	}
	if payload.RequesterEmail == "" {
		return nil
	}
	err := n.outbox.Enqueue(ctx, persistence.NotificationTask{
		Kind:          persistence.NotificationStatusUpdate,
		To:            payload.RequesterEmail,
		TicketNumber:  payload.TicketNumber,
		Subject:       payload.Subject,
		NewStatus:     string(payload.NewStatus),
		RequesterName: payload.RequesterName,
		DashboardURL:  n.cfg.DashboardURL,
	})
	if err != nil {
		n.logger.Warn("failed to enqueue status-update notification",
			zap.String("ticket_id", event.TicketID), zap.Error(err))
	}
	return err
}
