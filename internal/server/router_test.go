package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/DenDanskeSamler/scraperd/internal/status"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func publishDoc(t *testing.T, path string, doc status.Document) {
	t.Helper()
	lg := slog.New(slog.NewTextHandler(io.Discard, nil))
	status.NewPublisher(path, lg).Publish(doc)
}

func TestStatusEndpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraper_status.json")
	publishDoc(t, path, status.Document{
		Running:      true,
		CycleNumber:  7,
		TotalStages:  3,
		CurrentStage: "manga",
		StagesCompleted: []status.StageResult{
			{Name: "setup", ExitCode: 0},
		},
	})

	h := NewRouter(path, "", false).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, body %s", rec.Code, rec.Body.String())
	}
	var doc status.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if doc.CycleNumber != 7 || !doc.Running || doc.CurrentStage != "manga" {
		t.Errorf("unexpected document: %+v", doc)
	}
	if len(doc.StagesCompleted) != 1 || doc.StagesCompleted[0].Name != "setup" {
		t.Errorf("unexpected stages_completed: %+v", doc.StagesCompleted)
	}
}

func TestStatusEndpointNotPublished(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	h := NewRouter(path, "", false).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status code = %d, want 404", rec.Code)
	}
}

func TestBasePathRouting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	publishDoc(t, path, status.Document{CycleNumber: 1})

	h := NewRouter(path, "/api", false).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("/status outside base path = %d, want 404", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := NewRouter(filepath.Join(t.TempDir(), "s.json"), "", false).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	var resp okResp
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || !resp.OK {
		t.Fatalf("healthz body = %s", rec.Body.String())
	}
}

func TestNoControlEndpoints(t *testing.T) {
	h := NewRouter(filepath.Join(t.TempDir(), "s.json"), "", false).Handler()
	for _, target := range []string{"/start", "/stop", "/run"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("POST %s = %d, want 404", target, rec.Code)
		}
	}
}

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":      "",
		"/":     "",
		"api":   "/api",
		"/api/": "/api",
		" /v1 ": "/v1",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Errorf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}
