package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DenDanskeSamler/scraperd/internal/history"
)

func TestSQLiteSink_RoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()

	if err := sink.Send(ctx, history.Event{
		Type:        history.EventCycleStart,
		OccurredAt:  time.Now().UTC(),
		CycleNumber: 1,
	}); err != nil {
		t.Fatalf("Failed to send cycle_start: %v", err)
	}

	exit := 2
	if err := sink.Send(ctx, history.Event{
		Type:            history.EventStageEnd,
		OccurredAt:      time.Now().UTC(),
		CycleNumber:     1,
		Stage:           "chapters",
		ExitCode:        &exit,
		DurationSeconds: 4.2,
	}); err != nil {
		t.Fatalf("Failed to send stage_end: %v", err)
	}

	var count int
	row := sink.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cycle_history WHERE cycle_number = 1")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	if count != 2 {
		t.Fatalf("Expected 2 events, got %d", count)
	}

	var stage string
	var gotExit int
	row = sink.db.QueryRowContext(ctx, "SELECT stage, exit_code FROM cycle_history WHERE event = 'stage_end'")
	if err := row.Scan(&stage, &gotExit); err != nil {
		t.Fatalf("Failed to read stage_end row: %v", err)
	}
	if stage != "chapters" || gotExit != 2 {
		t.Fatalf("stage_end row mismatch: stage=%q exit=%d", stage, gotExit)
	}
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()
	if err := sink.Send(context.Background(), history.Event{
		Type: history.EventCycleEnd, OccurredAt: time.Now().UTC(), CycleNumber: 9,
	}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
