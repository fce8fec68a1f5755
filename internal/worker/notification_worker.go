package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ticketflow/helpdesk/internal/config"
	"github.com/ticketflow/helpdesk/internal/mailer"
	"github.com/ticketflow/helpdesk/internal/observability"
	"github.com/ticketflow/helpdesk/internal/persistence"
)

// NotificationWorker drains the outbox queue and delivers emails with its
// own bounded retries. It owns the failure domain of the email provider:
// tasks that exhaust their attempts are logged, counted, and dropped.
type NotificationWorker struct {
	outbox  *persistence.Outbox
	sender  mailer.Sender
	logger  *zap.Logger
	metrics *observability.Metrics
	cfg     config.NotifyConfig
}

// NewNotificationWorker builds the worker.
func NewNotificationWorker(outbox *persistence.Outbox, sender mailer.Sender, logger *zap.Logger, metrics *observability.Metrics, cfg config.NotifyConfig) *NotificationWorker {
	return &NotificationWorker{
		outbox:  outbox,
		sender:  sender,
		logger:  logger,
		metrics: metrics,
		cfg:     cfg,
	}
}

// Start launches the consume loop until ctx is cancelled.
func (w *NotificationWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *NotificationWorker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.outbox.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("outbox dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.WorkerBackoff):
			}
			continue
		}
		if task == nil {
			continue
		}
		w.deliver(ctx, task)
	}
}

func (w *NotificationWorker) deliver(ctx context.Context, task *persistence.NotificationTask) {
	msg, err := renderTask(task)
	if err != nil {
		w.logger.Error("unrenderable notification task dropped",
			zap.String("kind", string(task.Kind)), zap.Error(err))
		w.metrics.RecordNotificationFailure(string(task.Kind))
		return
	}
	msg.To = task.To

	attempts := w.cfg.WorkerAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = w.sender.Send(ctx, msg); err == nil {
			w.logger.Info("notification delivered",
				zap.String("kind", string(task.Kind)),
				zap.Int64("ticket_number", task.TicketNumber))
			return
		}
		w.logger.Warn("notification delivery failed",
			zap.String("kind", string(task.Kind)),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.WorkerBackoff):
			}
		}
	}
	w.metrics.RecordNotificationFailure(string(task.Kind))
}

func renderTask(task *persistence.NotificationTask) (mailer.Message, error) {
	switch task.Kind {
	case persistence.NotificationNewTicket:
		return mailer.RenderNewTicket(mailer.NewTicketData{
			TicketNumber:  task.TicketNumber,
			Subject:       task.Subject,
			Department:    task.Department,
			Priority:      task.Priority,
			RequesterName: task.RequesterName,
			Description:   task.Description,
			DashboardURL:  task.DashboardURL,
		})
	case persistence.NotificationStatusUpdate:
		return mailer.RenderStatusUpdate(mailer.StatusUpdateData{
			TicketNumber:  task.TicketNumber,
			Subject:       task.Subject,
			NewStatus:     task.NewStatus,
			RequesterName: task.RequesterName,
			DashboardURL:  task.DashboardURL,
		})
	default:
		return mailer.Message{}, fmt.Errorf("unknown notification kind %q", task.Kind)
	}
}
