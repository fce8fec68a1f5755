package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// NotificationKind discriminates outbox tasks.
type NotificationKind string

const (
	NotificationNewTicket    NotificationKind = "new-ticket"
	NotificationStatusUpdate NotificationKind = "status-update"
)

// NotificationTask is one queued email delivery. Tasks are enqueued after
// the primary operation has committed; delivery failures never roll back
// ticket state.
type NotificationTask struct {
	Kind          NotificationKind `json:"kind"`
	To            string           `json:"to"`
	TicketNumber  int64            `json:"ticket_number"`
	Subject       string           `json:"subject"`
	Department    string           `json:"department,omitempty"`
	Priority      string           `json:"priority,omitempty"`
	NewStatus     string           `json:"new_status,omitempty"`
	RequesterName string           `json:"requester_name"`
	Description   string           `json:"description,omitempty"`
	DashboardURL  string           `json:"dashboard_url,omitempty"`
}

// Outbox is a Redis-backed FIFO queue of notification tasks.
type Outbox struct {
	client *redis.Client
	key    string
}

// NewOutbox builds an outbox on the given queue key.
func NewOutbox(r *Redis, key string) *Outbox {
	return &Outbox{client: r.Client, key: key}
}

// Enqueue pushes a task. An error here only degrades the calling operation
// to a success-with-warning; the ticket mutation is already durable.
func (o *Outbox) Enqueue(ctx context.Context, task NotificationTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return o.client.LPush(ctx, o.key, payload).Err()
}

// Dequeue blocks up to timeout for the next task. Returns (nil, nil) when
// the queue stayed empty.
func (o *Outbox) Dequeue(ctx context.Context, timeout time.Duration) (*NotificationTask, error) {
	res, err := o.client.BRPop(ctx, timeout, o.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, errors.New("unexpected BRPOP reply shape")
	}
	var task NotificationTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, err
	}
	return &task, nil
}
