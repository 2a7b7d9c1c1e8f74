// Package logbook keeps the per-project collection journal: one leveled line
// per event, tagged with the run it belongs to.
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a journal entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logbook appends entries to a text file. It is safe for concurrent use;
// item completions on worker goroutines write here directly.
type Logbook struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// New creates a logbook that writes to path, creating parent directories.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logbook: ensure dir: %w", err)
	}
	return &Logbook{path: path, now: time.Now}, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes one entry. An empty tag writes an untagged line.
func (l *Logbook) Append(level Level, tag, message string) {
	if l == nil {
		return
	}
	message = strings.Join(strings.Fields(message), " ")
	if tag != "" {
		message = "[" + tag + "] " + message
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	line := fmt.Sprintf("%s %-5s %s\n", l.now().UTC().Format(time.RFC3339), string(level), message)
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(line)
}

// Tail returns up to maxLines of the most recent entries and the total
// number of entries in the file.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	lines := l.lines("")
	total := len(lines)
	if maxLines <= 0 || total == 0 {
		return nil, total
	}
	if total > maxLines {
		lines = lines[total-maxLines:]
	}
	return lines, total
}

// Entries returns every entry tagged with tag, oldest first.
func (l *Logbook) Entries(tag string) []string {
	if tag == "" {
		return nil
	}
	return l.lines("[" + tag + "] ")
}

func (l *Logbook) lines(marker string) []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil
	}
	defer file.Close()
	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		text := scanner.Text()
		if marker == "" || strings.Contains(text, marker) {
			lines = append(lines, text)
		}
	}
	return lines
}

// Run returns a journal whose entries are tagged with runID.
func (l *Logbook) Run(runID string) Journal {
	return Journal{book: l, tag: runID}
}

// Journal writes entries for one run. The zero value discards everything.
type Journal struct {
	book *Logbook
	tag  string
}

// Info appends an informational entry.
func (j Journal) Info(format string, args ...any) {
	j.book.Append(LevelInfo, j.tag, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (j Journal) Warn(format string, args ...any) {
	j.book.Append(LevelWarn, j.tag, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (j Journal) Error(format string, args ...any) {
	j.book.Append(LevelError, j.tag, fmt.Sprintf(format, args...))
}
