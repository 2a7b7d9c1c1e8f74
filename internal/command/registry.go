package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Pending is an orchestrated command still in flight. Result is valid once
// Done has closed; a non-nil error means the command failed as a whole, and
// the Response then carries whatever detail is known about the failure.
type Pending interface {
	Done() <-chan struct{}
	Result() (Response, error)
}

// Command binds a name to exactly one of a synchronous handler or an
// orchestrated starter.
type Command struct {
	Kind    Kind
	Aliases []string

	// Sync answers on the request goroutine.
	Sync func(ctx context.Context, req Request) (Response, error)
	// Start begins the work and returns immediately; the caller parks on
	// the returned Pending.
	Start func(req Request) (Pending, error)
}

// Orchestrated reports whether the command answers through a Pending.
func (c Command) Orchestrated() bool {
	return c.Start != nil
}

func (c Command) validate() error {
	if strings.TrimSpace(string(c.Kind)) == "" {
		return fmt.Errorf("command: kind is required")
	}
	if (c.Sync == nil) == (c.Start == nil) {
		return fmt.Errorf("command: %s needs exactly one of Sync or Start", c.Kind)
	}
	return nil
}

// Registry maintains the commands the bridge routes to.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: map[string]Command{}}
}

// Register installs cmd under its kind and aliases. Names must be unique.
func (r *Registry) Register(cmd Command) error {
	if err := cmd.validate(); err != nil {
		return err
	}
	names := append([]string{string(cmd.Kind)}, cmd.Aliases...)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if _, exists := r.commands[name]; exists {
			return fmt.Errorf("command: %s already registered", name)
		}
	}
	for _, name := range names {
		r.commands[name] = cmd
	}
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(cmd Command) {
	if err := r.Register(cmd); err != nil {
		panic(err)
	}
}

// Resolve looks a command up by name or alias.
func (r *Registry) Resolve(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Names returns every registered name, aliases included, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
