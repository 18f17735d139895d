package processor

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType enumerates the webhook callbacks the ledger reacts to. The
// processor may deliver them out of order and more than once.
type EventType string

const (
	EventAuthorizationSucceeded EventType = "authorization.succeeded"
	EventAuthorizationFailed    EventType = "authorization.failed"
	EventCaptureSucceeded       EventType = "capture.succeeded"
	EventCaptureFailed          EventType = "capture.failed"
	EventRefundSucceeded        EventType = "refund.succeeded"
)

// Event is a normalized webhook payload.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	IntentRef  string            `json:"intent_ref"`
	CaptureRef string            `json:"capture_ref,omitempty"`
	Amount     float64           `json:"amount,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ParseEvent decodes a webhook body. Unknown event types are returned as-is;
// callers decide whether to ignore them.
func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("processor: decode webhook: %w", err)
	}
	if ev.ID == "" {
		return Event{}, fmt.Errorf("processor: webhook missing event id")
	}
	if ev.IntentRef == "" {
		return Event{}, fmt.Errorf("processor: webhook missing intent ref")
	}
	return ev, nil
}
