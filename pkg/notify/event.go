package notify

import (
	"context"
	"time"
)

// EventType names a task workflow event
type EventType string

const (
	EventTaskAssigned  EventType = "task.assigned"
	EventTaskSubmitted EventType = "task.submitted"
	EventTaskApproved  EventType = "task.approved"
	EventTaskRejected  EventType = "task.rejected"
)

// Event is the JSON body delivered to a webhook
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	OrgID     int64                  `json:"org_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Notifier delivers events. Notify must not block on delivery and never
// fails the caller.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// NoopNotifier drops every event
type NoopNotifier struct{}

func (NoopNotifier) Notify(ctx context.Context, event Event) {}

// Multi fans an event out to several notifiers
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) {
	for _, n := range m {
		n.Notify(ctx, event)
	}
}
