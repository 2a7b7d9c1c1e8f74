// Package logging writes the daemon log under .editorbridge/logs.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/editorbridge/internal/config"
)

// FileName is the daemon log inside the logs directory.
const FileName = "editorbridge.log"

// Logger appends timestamped lines to .editorbridge/logs/editorbridge.log so
// failures stay inspectable after the editor closes. Lines can be mirrored to
// a second writer such as stderr.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	mirror io.Writer
	now    func() time.Time
}

// New creates (or reuses) the log file for the project directory.
func New(projectDir string) (*Logger, error) {
	return Open(filepath.Join(projectDir, config.Dir, "logs", FileName))
}

// Open appends to an explicit log path.
func Open(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{file: f, now: time.Now}, nil
}

// Mirror copies every line to w as well. Passing nil stops mirroring.
func (l *Logger) Mirror(w io.Writer) *Logger {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	l.mirror = w
	l.mu.Unlock()
	return l
}

// Path returns the backing file path.
func (l *Logger) Path() string {
	if l == nil || l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Printf writes a single timestamped line.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.file == nil {
		return
	}
	line := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	stamped := fmt.Sprintf("[%s] %s\n", l.now().Format(time.RFC3339), line)
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.file, stamped)
	if l.mirror != nil {
		_, _ = io.WriteString(l.mirror, stamped)
	}
}
