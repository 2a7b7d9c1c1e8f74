package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesUnderProjectDir(t *testing.T) {
	projectDir := t.TempDir()
	logger, err := New(projectDir)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	var mirror bytes.Buffer
	logger.Mirror(&mirror)
	logger.Printf("bridge listening on %s\n", "127.0.0.1:5000")
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := "[2026-01-02T03:04:05Z] bridge listening on 127.0.0.1:5000\n"
	data, err := os.ReadFile(filepath.Join(projectDir, ".editorbridge", "logs", FileName))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(data) != want {
		t.Fatalf("expected %q, got %q", want, data)
	}
	if mirror.String() != want {
		t.Fatalf("expected mirrored line, got %q", mirror.String())
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Printf("ignored")
	if err := logger.Close(); err != nil {
		t.Fatalf("expected nil close to succeed, got %v", err)
	}
	if !strings.HasSuffix(FileName, ".log") {
		t.Fatalf("unexpected file name %s", FileName)
	}
}
