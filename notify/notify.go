package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Notification is the event emitted to the external notification collaborator
// on every major settlement transition. Delivery is someone else's problem;
// this package only guarantees the event is recorded at least once.
type Notification struct {
	Type        string
	RecipientID string
	Title       string
	Message     string
	Data        map[string]any
}

// Notifier records a notification inside the caller's transaction so the
// event cannot be lost if the state change commits.
type Notifier interface {
	Notify(ctx context.Context, tx pgx.Tx, n Notification) error
}

// Outbox writes notifications to the transactional outbox table. A relay
// process drains the table and talks to the real notification service.
type Outbox struct{}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Notify(ctx context.Context, tx pgx.Tx, n Notification) error {
	if n.Type == "" {
		return fmt.Errorf("notify: missing notification type")
	}

	payload := map[string]any{
		"title":   n.Title,
		"message": n.Message,
		"data":    n.Data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	var recipient any
	if n.RecipientID != "" {
		recipient = n.RecipientID
	}

	const q = `INSERT INTO outbox (topic, recipient_id, payload) VALUES ($1, $2, $3::jsonb)`
	if _, err := tx.Exec(ctx, q, n.Type, recipient, body); err != nil {
		return fmt.Errorf("notify: enqueue outbox: %w", err)
	}
	return nil
}
