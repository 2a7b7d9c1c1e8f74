// cmd/editorbridge-monitor/main.go
//
// editorbridge-monitor is a read-only terminal view of a running
// editorbridge daemon. It polls /health and /runs and never sends commands.

package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/kingrea/editorbridge/internal/bridge"
	"github.com/kingrea/editorbridge/internal/tui"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "editorbridge-monitor: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		url      string
		interval time.Duration
	)
	flagSet := pflag.NewFlagSet("editorbridge-monitor", pflag.ContinueOnError)
	flagSet.StringVarP(&url, "url", "u", bridge.DefaultSettings().URL(), "bridge base URL")
	flagSet.DurationVarP(&interval, "interval", "i", tui.DefaultInterval, "poll interval")
	flagSet.BoolP("help", "h", false, "show help")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintf(os.Stderr, "Usage: editorbridge-monitor [flags]\n\nFlags:\n")
		flagSet.PrintDefaults()
		return nil
	}

	client := bridge.NewClient(url, &http.Client{Timeout: 5 * time.Second})
	app, err := tui.NewApp(client, tui.WithInterval(interval), tui.WithTarget(client.BaseURL()))
	if err != nil {
		return err
	}
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run monitor: %w", err)
	}
	return nil
}
