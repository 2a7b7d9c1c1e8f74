// Package hostui holds the editor-facing capabilities the navigate command
// needs: selecting an item and raising the editor window.
package hostui

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/editorbridge/internal/catalog"
)

// Selector makes a host path the current selection. It reports false when
// the path does not name an item.
type Selector interface {
	Select(path string) (bool, error)
}

// Foreground raises the editor window.
type Foreground interface {
	BringToFront() error
}

// CatalogSelector resolves host paths against a content root and remembers
// the last one it selected.
type CatalogSelector struct {
	source catalog.FileSource

	mu       sync.RWMutex
	selected string
}

// NewCatalogSelector selects items under root.
func NewCatalogSelector(root string) *CatalogSelector {
	return &CatalogSelector{source: catalog.FileSource{Root: root}}
}

// Select implements Selector. Paths outside the content root are not found.
func (s *CatalogSelector) Select(path string) (bool, error) {
	_, found, err := s.source.Locate(path)
	if err != nil {
		if errors.Is(err, catalog.ErrOutsideRoot) {
			return false, nil
		}
		return false, fmt.Errorf("hostui: select %s: %w", path, err)
	}
	if !found {
		return false, nil
	}
	s.mu.Lock()
	s.selected = strings.TrimSpace(path)
	s.mu.Unlock()
	return true, nil
}

// Selection returns the current selection, empty if nothing was selected.
func (s *CatalogSelector) Selection() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// DefaultForegroundTimeout bounds the raise command.
const DefaultForegroundTimeout = 5 * time.Second

// CommandForeground runs an external command (for example wmctrl -a Unity)
// to raise the editor window.
type CommandForeground struct {
	Command []string
	Timeout time.Duration
}

// BringToFront implements Foreground.
func (f CommandForeground) BringToFront() error {
	if len(f.Command) == 0 {
		return fmt.Errorf("hostui: foreground command is not configured")
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultForegroundTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, f.Command[0], f.Command[1:]...).CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			return fmt.Errorf("hostui: %s: %w: %s", f.Command[0], err, detail)
		}
		return fmt.Errorf("hostui: %s: %w", f.Command[0], err)
	}
	return nil
}

// NopForeground always succeeds.
type NopForeground struct{}

// BringToFront implements Foreground.
func (NopForeground) BringToFront() error { return nil }

// ForegroundFor picks CommandForeground when a command is configured.
func ForegroundFor(command []string) Foreground {
	if len(command) == 0 {
		return NopForeground{}
	}
	return CommandForeground{Command: append([]string(nil), command...)}
}
