package command

import (
	"context"
	"fmt"

	"github.com/kingrea/editorbridge/internal/host"
	"github.com/kingrea/editorbridge/internal/hostui"
)

// Logger receives handler diagnostics.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Navigate selects an item in the host and then raises the host window.
// Selection runs on the host loop; the raise is posted after it, so the
// response does not wait on the window manager.
func Navigate(loop *host.Loop, selector hostui.Selector, foreground hostui.Foreground, logger Logger) Command {
	if foreground == nil {
		foreground = hostui.NopForeground{}
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return Command{
		Kind: KindNavigate,
		Sync: func(ctx context.Context, req Request) (Response, error) {
			var found bool
			err := loop.Call(ctx, func() error {
				var err error
				found, err = selector.Select(req.Path)
				return err
			})
			if err != nil {
				return Response{}, fmt.Errorf("command: navigate %s: %w", req.Path, err)
			}
			if !found {
				logger.Printf("command: navigate: asset not found: %s", req.Path)
				return Failure("asset not found: " + req.Path), nil
			}
			logger.Printf("command: navigated to %s", req.Path)
			if err := loop.Post(func() {
				if err := foreground.BringToFront(); err != nil {
					logger.Printf("command: bring host to front: %v", err)
				}
			}); err != nil {
				logger.Printf("command: schedule bring to front: %v", err)
			}
			return Response{Success: true, Message: "Path received"}, nil
		},
	}
}
