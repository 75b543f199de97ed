package logging

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func readEntries(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening log file: %v", err)
	}
	defer f.Close()

	var entries []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("log line is not JSON: %v: %s", err, scanner.Text())
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Info("starting run", "profile", "dev", "jobs", 4)
	logger.Warn("lock contention", "lock", "apt_lock")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	entries := readEntries(t, filepath.Join(dir, "bootstrap.log"))
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0]["msg"] != "starting run" || entries[0]["profile"] != "dev" {
		t.Errorf("entry[0] = %v", entries[0])
	}
	if entries[1]["level"] != "WARN" || entries[1]["lock"] != "apt_lock" {
		t.Errorf("entry[1] = %v", entries[1])
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, LevelWarn)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Debug("noise")
	logger.Info("also noise")
	logger.Error("signal")
	logger.Close()

	entries := readEntries(t, filepath.Join(dir, "bootstrap.log"))
	if len(entries) != 1 || entries[0]["msg"] != "signal" {
		t.Errorf("entries = %v, want only the error", entries)
	}
}

func TestChildLoggerAttributes(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.WithPhase("installation").WithTool("ripgrep").Info("installing")
	logger.WithStep("install:black").Debug("pip resolving")
	logger.Info("no attrs")
	logger.Close()

	entries := readEntries(t, filepath.Join(dir, "bootstrap.log"))
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0]["phase"] != "installation" || entries[0]["tool"] != "ripgrep" {
		t.Errorf("child attrs missing: %v", entries[0])
	}
	if entries[1]["step"] != "install:black" {
		t.Errorf("step attr missing: %v", entries[1])
	}
	if _, ok := entries[2]["phase"]; ok {
		t.Error("parent logger picked up child attributes")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "DEBUG", want: slog.LevelDebug},
		{in: "debug", want: slog.LevelDebug},
		{in: "WARN", want: slog.LevelWarn},
		{in: "ERROR", want: slog.LevelError},
		{in: "bogus", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Info("discarded")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
