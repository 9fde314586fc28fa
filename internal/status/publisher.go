package status

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Publisher rewrites the status artifact atomically so concurrent readers
// never observe a torn document. Write failures are logged and swallowed:
// losing one observation must not abort the pipeline.
type Publisher struct {
	path   string
	logger *slog.Logger
}

func NewPublisher(path string, lg *slog.Logger) *Publisher {
	if lg == nil {
		lg = slog.Default()
	}
	return &Publisher{path: path, logger: lg}
}

// Path returns the artifact location.
func (p *Publisher) Path() string { return p.path }

// Publish stamps LastUpdate and writes the document. Best effort.
func (p *Publisher) Publish(doc Document) {
	doc.LastUpdate = time.Now()
	if err := p.write(doc); err != nil {
		p.logger.Error("failed to publish status", "path", p.path, "error", err)
	}
}

func (p *Publisher) write(doc Document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create status dir: %w", err)
	}
	// Write to a temp file in the same directory, then rename over the
	// artifact. Rename is atomic on POSIX filesystems, so a reader sees
	// either the old document or the new one, never a partial write.
	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp status file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp status file: %w", err)
	}
	// Artifact is consumed by other processes; keep it world-readable.
	_ = os.Chmod(tmpName, 0o644)
	if err := os.Rename(tmpName, p.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace status file: %w", err)
	}
	return nil
}

// Load reads and parses the artifact. Callers should treat a not-exist error
// as "daemon has not published yet", per the reader contract.
func Load(path string) (Document, error) {
	var doc Document
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return doc, fmt.Errorf("parse status file %s: %w", path, err)
	}
	return doc, nil
}
