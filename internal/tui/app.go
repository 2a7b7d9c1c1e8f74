// internal/tui/app.go
//
// Read-only monitor for a running editorbridge daemon. It follows The Elm
// Architecture like any bubbletea program:
//
// 1. Model: the last /health and /runs answers
// 2. Update: poll results, spinner ticks and key presses
// 3. View: a status board rendered with lipgloss
//
// The monitor never sends commands to the bridge.

package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/editorbridge/internal/bridge"
	"github.com/kingrea/editorbridge/internal/collect"
)

const (
	DefaultInterval = time.Second
	pollTimeout     = 3 * time.Second
	maxFinishedRows = 10
)

// Source answers the two read-only bridge queries. *bridge.Client satisfies it.
type Source interface {
	Health(ctx context.Context) (bridge.Health, error)
	Runs(ctx context.Context) ([]collect.Snapshot, error)
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) AppOption {
	return func(a *App) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithClock overrides the clock used for elapsed times.
func WithClock(now func() time.Time) AppOption {
	return func(a *App) {
		if now != nil {
			a.now = now
		}
	}
}

// WithTarget labels the board with the bridge address being watched.
func WithTarget(target string) AppOption {
	return func(a *App) {
		a.target = strings.TrimSpace(target)
	}
}

type snapshotMsg struct {
	health bridge.Health
	runs   []collect.Snapshot
	err    error
	at     time.Time
}

type keyMap struct {
	Quit    key.Binding
	Refresh key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	}
}

// App is the monitor model.
type App struct {
	source   Source
	interval time.Duration
	now      func() time.Time
	target   string
	keys     keyMap
	spinner  spinner.Model

	health    bridge.Health
	runs      []collect.Snapshot
	polled    bool
	lastPoll  time.Time
	pollErr   string
	statusMsg string

	width  int
	height int
}

// NewApp builds a monitor polling source.
func NewApp(source Source, opts ...AppOption) (*App, error) {
	if source == nil {
		return nil, fmt.Errorf("tui: source is required")
	}
	a := &App{
		source:    source,
		interval:  DefaultInterval,
		now:       time.Now,
		keys:      defaultKeyMap(),
		statusMsg: "Connecting...",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.spinner = spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))),
	)
	return a, nil
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.fetchSnapshot())
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case snapshotMsg:
		a.polled = true
		a.lastPoll = msg.at
		if msg.err != nil {
			a.pollErr = msg.err.Error()
			a.statusMsg = "Bridge unreachable, retrying"
		} else {
			a.pollErr = ""
			a.health = msg.health
			a.runs = msg.runs
			a.statusMsg = fmt.Sprintf("Updated %s", msg.at.Format("15:04:05"))
		}
		return a, a.scheduleRefresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, a.keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, a.keys.Refresh):
			a.statusMsg = "Refreshing..."
			return a, a.fetchSnapshot()
		}
	}
	return a, nil
}

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("⬡ EDITORBRIDGE")
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, width-4))
	sections := []string{
		header,
		box.Render(a.renderHealth()),
		box.Render(a.renderActive()),
		box.Render(a.renderFinished()),
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(fmt.Sprintf("%s · %s · %s", a.statusMsg, helpLabel(a.keys.Refresh), helpLabel(a.keys.Quit)))
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderHealth() string {
	title := panelTitle("BRIDGE")
	if a.target != "" {
		title = panelTitle("BRIDGE · " + a.target)
	}
	if !a.polled {
		return lipgloss.JoinVertical(lipgloss.Left, title, a.spinner.View()+" waiting for first poll")
	}
	if a.pollErr != "" {
		errLine := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Render(a.pollErr)
		return lipgloss.JoinVertical(lipgloss.Left, title, errLine)
	}
	h := a.health
	lines := []string{
		fmt.Sprintf("Status: %s   Protocol: %s   Up: %s", h.Status, h.Version, humanizeDuration(time.Duration(h.UptimeSeconds)*time.Second)),
		fmt.Sprintf("Listening: %s", strings.Join(h.Addresses, ", ")),
		fmt.Sprintf("Commands: %s", strings.Join(h.Commands, ", ")),
		fmt.Sprintf("In flight: %d", h.InFlight),
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, mutedText(strings.Join(lines, "\n")))
}

func (a *App) renderActive() string {
	title := panelTitle("IN FLIGHT")
	var lines []string
	for _, run := range a.runs {
		if run.State != collect.StateRunning {
			continue
		}
		done := run.Target - run.Remaining
		lines = append(lines, fmt.Sprintf("%s %s  %s  %d/%d  %s",
			a.spinner.View(), shortID(run.ID), scopeLabel(run.Scope), done, run.Target,
			humanizeDuration(a.now().Sub(run.StartedAt))))
	}
	if len(lines) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, mutedText("No collection in progress."))
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"))
}

func (a *App) renderFinished() string {
	title := panelTitle("RECENT")
	var lines []string
	for _, run := range a.runs {
		if run.State == collect.StateRunning {
			continue
		}
		if len(lines) == maxFinishedRows {
			break
		}
		lines = append(lines, finishedLine(run))
	}
	if len(lines) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, mutedText("No finished runs yet."))
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"))
}

func finishedLine(run collect.Snapshot) string {
	c := run.Counts
	mark := lipgloss.NewStyle().Foreground(lipgloss.Color("#50C878")).Render("✓")
	if run.State == collect.StateFailed {
		mark = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Render("✗")
	}
	line := fmt.Sprintf("%s %s  %s  ok %d · failed %d · unsupported %d · skipped %d  (%s)",
		mark, shortID(run.ID), scopeLabel(run.Scope), c.Succeeded, c.Failed, c.Unsupported, c.Skipped,
		humanizeDuration(run.FinishedAt.Sub(run.StartedAt)))
	if run.Error != "" {
		line += "\n    " + mutedText(run.Error)
	}
	return line
}

func (a *App) fetchSnapshot() tea.Cmd {
	return func() tea.Msg {
		return a.buildSnapshot()
	}
}

func (a *App) scheduleRefresh() tea.Cmd {
	return tea.Tick(a.interval, func(time.Time) tea.Msg {
		return a.buildSnapshot()
	})
}

func (a *App) buildSnapshot() snapshotMsg {
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()
	msg := snapshotMsg{at: a.now()}
	health, err := a.source.Health(ctx)
	if err != nil {
		msg.err = err
		return msg
	}
	runs, err := a.source.Runs(ctx)
	if err != nil {
		msg.err = err
		return msg
	}
	msg.health = health
	msg.runs = runs
	return msg
}

func panelTitle(text string) string {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(text)
}

func mutedText(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(text)
}

func helpLabel(b key.Binding) string {
	h := b.Help()
	return fmt.Sprintf("%s %s", h.Key, h.Desc)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func scopeLabel(scope string) string {
	if strings.TrimSpace(scope) == "" {
		return "(content root)"
	}
	return scope
}

func humanizeDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh", int(d.Hours()))
}
