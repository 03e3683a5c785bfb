package config_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docufind/mcp-server/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writePatterns(t *testing.T, path string, patterns []string) {
	t.Helper()
	data, err := json.Marshal(patterns)
	if err != nil {
		t.Fatalf("marshal patterns: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write patterns file: %v", err)
	}
}

func TestPatternTable_EmptyPathKeepsFallback(t *testing.T) {
	pt, err := config.NewPatternTable("", []string{"Skip Navigation"}, discardLogger())
	if err != nil {
		t.Fatalf("NewPatternTable() error = %v", err)
	}
	defer pt.Close()

	got := pt.Patterns()
	if len(got) != 1 || got[0] != "Skip Navigation" {
		t.Errorf("Patterns() = %v, want fallback", got)
	}
}

func TestPatternTable_LoadsInitialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.json")
	writePatterns(t, path, []string{"Global Nav", "Search Developer"})

	pt, err := config.NewPatternTable(path, []string{"fallback-only"}, discardLogger())
	if err != nil {
		t.Fatalf("NewPatternTable() error = %v", err)
	}
	defer pt.Close()

	got := pt.Patterns()
	if len(got) != 2 || got[0] != "Global Nav" || got[1] != "Search Developer" {
		t.Errorf("Patterns() = %v, want file contents", got)
	}
}

func TestPatternTable_MissingFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.json")

	pt, err := config.NewPatternTable(path, []string{"fallback"}, discardLogger())
	if err == nil {
		defer pt.Close()
	}
	// A missing watch target fails watcher.Add, which NewPatternTable
	// surfaces as an error rather than silently degrading, since the
	// caller asked for a specific path to watch.
	if err == nil {
		t.Fatalf("expected error for unwatchable missing path")
	}
}

func TestPatternTable_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.json")
	writePatterns(t, path, []string{"Skip Navigation"})

	pt, err := config.NewPatternTable(path, nil, discardLogger())
	if err != nil {
		t.Fatalf("NewPatternTable() error = %v", err)
	}
	defer pt.Close()

	if got := pt.Patterns(); len(got) != 1 || got[0] != "Skip Navigation" {
		t.Fatalf("initial Patterns() = %v", got)
	}

	writePatterns(t, path, []string{"Skip Navigation", "Platform Selector"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := pt.Patterns(); len(got) == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Patterns() never reflected reload, still = %v", pt.Patterns())
}
