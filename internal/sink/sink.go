// Package sink persists the aggregated result of a collection run. Sinks are
// called once per run, on the host loop, after every item has reported.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kingrea/editorbridge/internal/catalog"
)

// Batch is what a run hands to persistence: the successful items plus the
// run's accounting.
type Batch struct {
	RunID       string
	Scope       string
	Items       []catalog.Item
	Enumerated  int
	Skipped     int
	Unsupported int
	Failed      int
	FinishedAt  time.Time
}

// Sink writes a batch into outputDir.
type Sink interface {
	Write(ctx context.Context, batch Batch, outputDir string) error
}

// Func adapts a function into a Sink.
type Func func(ctx context.Context, batch Batch, outputDir string) error

// Write executes f(ctx, batch, outputDir).
func (f Func) Write(ctx context.Context, batch Batch, outputDir string) error {
	return f(ctx, batch, outputDir)
}

// Multi writes to every sink in order. A failing sink does not stop the
// ones after it; all errors are joined.
type Multi []Sink

// Write implements Sink.
func (m Multi) Write(ctx context.Context, batch Batch, outputDir string) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Write(ctx, batch, outputDir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Kind names a sink implementation in configuration.
type Kind string

const (
	KindJSON   Kind = "json"
	KindSQLite Kind = "sqlite"
)

// ParseKind validates a configured sink name.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindJSON:
		return KindJSON, nil
	case KindSQLite:
		return KindSQLite, nil
	default:
		return "", fmt.Errorf("sink: unknown kind %q", value)
	}
}
