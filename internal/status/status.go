package status

import (
	"time"

	"github.com/DenDanskeSamler/scraperd/internal/stage"
)

// StageResult is the published record of one completed stage.
type StageResult struct {
	Name            string    `json:"name"`
	ExitCode        int       `json:"exit_code"`
	DurationSeconds float64   `json:"duration_seconds"`
	CompletedAt     time.Time `json:"completed_at"`
	TimedOut        bool      `json:"timed_out,omitempty"`
}

// FromResult converts a runner result into its published form.
func FromResult(r stage.Result) StageResult {
	return StageResult{
		Name:            r.Name,
		ExitCode:        r.ExitCode,
		DurationSeconds: r.Duration.Seconds(),
		CompletedAt:     r.StartedAt.Add(r.Duration),
		TimedOut:        r.TimedOut,
	}
}

// Document is the status artifact written after every transition and read by
// external viewers. Pointer fields are absent from the JSON while the
// corresponding instant has not occurred. Readers must tolerate the file
// being briefly absent on first run.
type Document struct {
	Running           bool          `json:"running"`
	CycleNumber       int64         `json:"cycle_number"`
	CurrentStage      string        `json:"current_stage,omitempty"`
	TotalStages       int           `json:"total_stages"`
	StagesCompleted   []StageResult `json:"stages_completed"`
	StartedAt         *time.Time    `json:"started_at,omitempty"`
	FinishedAt        *time.Time    `json:"finished_at,omitempty"`
	NextRunAt         *time.Time    `json:"next_run_at,omitempty"`
	LastUpdate        time.Time     `json:"last_update"`
	ShutdownRequested bool          `json:"shutdown_requested,omitempty"`
}

// Clone returns a deep copy so the caller can publish a snapshot while the
// daemon keeps mutating its own document.
func (d Document) Clone() Document {
	out := d
	if d.StagesCompleted != nil {
		out.StagesCompleted = make([]StageResult, len(d.StagesCompleted))
		copy(out.StagesCompleted, d.StagesCompleted)
	}
	if d.StartedAt != nil {
		t := *d.StartedAt
		out.StartedAt = &t
	}
	if d.FinishedAt != nil {
		t := *d.FinishedAt
		out.FinishedAt = &t
	}
	if d.NextRunAt != nil {
		t := *d.NextRunAt
		out.NextRunAt = &t
	}
	return out
}
