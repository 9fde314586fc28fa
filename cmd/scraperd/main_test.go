package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/DenDanskeSamler/scraperd"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires unix shell")
	}
}

func TestBuildRootCommands(t *testing.T) {
	root := buildRoot()
	want := map[string]bool{
		"serve":   false,
		"run":     false,
		"status":  false,
		"version": false,
	}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestServeRequiresConfig(t *testing.T) {
	root := buildRoot()
	root.SetArgs([]string{"serve"})
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	if err := root.Execute(); err == nil {
		t.Fatal("serve without config should fail")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunCommandExecutesOneCycle(t *testing.T) {
	requireUnix(t)
	statusFile := filepath.Join(t.TempDir(), "scraper_status.json")
	cfgPath := writeConfig(t, `
interval = "1h"
status_file = "`+statusFile+`"

[[stages]]
name = "hello"
command = "true"
`)

	root := buildRoot()
	root.SetArgs([]string{"run", "--config", cfgPath})
	if err := root.Execute(); err != nil {
		t.Fatalf("run: %v", err)
	}

	doc, err := scraperd.LoadStatus(statusFile)
	if err != nil {
		t.Fatalf("load status: %v", err)
	}
	if doc.CycleNumber != 1 || len(doc.StagesCompleted) != 1 {
		t.Errorf("unexpected status after one-shot run: %+v", doc)
	}
}

func TestRunCommandReportsStageFailure(t *testing.T) {
	requireUnix(t)
	statusFile := filepath.Join(t.TempDir(), "scraper_status.json")
	cfgPath := writeConfig(t, `
status_file = "`+statusFile+`"

[[stages]]
name = "broken"
command = "sh -c 'exit 2'"
`)

	root := buildRoot()
	root.SetArgs([]string{"run", "--config", cfgPath})
	root.SetErr(new(bytes.Buffer))
	if err := root.Execute(); err == nil {
		t.Fatal("run with a failing stage should return an error")
	}
}

func TestStatusCommandReadsFile(t *testing.T) {
	requireUnix(t)
	statusFile := filepath.Join(t.TempDir(), "scraper_status.json")
	cfgPath := writeConfig(t, `
status_file = "`+statusFile+`"

[[stages]]
name = "hello"
command = "true"
`)

	root := buildRoot()
	root.SetArgs([]string{"run", "--config", cfgPath})
	if err := root.Execute(); err != nil {
		t.Fatalf("run: %v", err)
	}

	root = buildRoot()
	root.SetArgs([]string{"status", "--status-file", statusFile})
	if err := root.Execute(); err != nil {
		t.Fatalf("status: %v", err)
	}
}

func TestStatusCommandWithoutSource(t *testing.T) {
	root := buildRoot()
	root.SetArgs([]string{"status"})
	root.SetErr(new(bytes.Buffer))
	if err := root.Execute(); err == nil {
		t.Fatal("status without a source should fail")
	}
}
