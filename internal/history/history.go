package history

import (
	"context"
	"time"
)

// EventType defines the kind of orchestration event.
type EventType string

const (
	EventCycleStart EventType = "cycle_start"
	EventStageStart EventType = "stage_start"
	EventStageEnd   EventType = "stage_end"
	EventCycleEnd   EventType = "cycle_end"
)

// Event is one orchestration transition exported to external systems. Stage
// and the exit fields are only set for stage events; a nil ExitCode means the
// stage has not finished.
type Event struct {
	Type            EventType `json:"type"`
	OccurredAt      time.Time `json:"occurred_at"`
	CycleNumber     int64     `json:"cycle_number"`
	Stage           string    `json:"stage,omitempty"`
	ExitCode        *int      `json:"exit_code,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
}

// Sink is a destination for orchestration events (audit/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
