package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DenDanskeSamler/scraperd/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var gotPath string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	sink := New(server.URL, "cycle-history")
	defer func() { _ = sink.Close() }()

	exit := 0
	e := history.Event{
		Type:            history.EventStageEnd,
		OccurredAt:      time.Now().UTC(),
		CycleNumber:     5,
		Stage:           "thumbnails",
		ExitCode:        &exit,
		DurationSeconds: 0.75,
	}
	if err := sink.Send(context.Background(), e); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotPath != "/cycle-history/_doc" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	var decoded history.Event
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if decoded.Stage != "thumbnails" || decoded.CycleNumber != 5 {
		t.Fatalf("event mismatch: %+v", decoded)
	}
}

func TestOpenSearchSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sink := New(server.URL, "idx")
	if err := sink.Send(context.Background(), history.Event{Type: history.EventCycleStart}); err == nil {
		t.Fatalf("expected error on 400 response")
	}
}

func TestOpenSearchSink_TrimsTrailingSlash(t *testing.T) {
	sink := New("http://localhost:9200///", "idx")
	if sink.baseURL != "http://localhost:9200" {
		t.Fatalf("baseURL not trimmed: %q", sink.baseURL)
	}
}
