package command

import (
	"fmt"

	"github.com/kingrea/editorbridge/internal/catalog"
	"github.com/kingrea/editorbridge/internal/collect"
)

// CollectOptions configures the collect command.
type CollectOptions struct {
	// DefaultOutput is used when a request names no outputPath.
	DefaultOutput string
	// Resolve anchors relative output paths, usually at the project root.
	Resolve func(string) string
}

// Collect starts an orchestrated collection. project_info is kept as an alias.
func Collect(orch *collect.Orchestrator, opts CollectOptions) Command {
	return Command{
		Kind:    KindCollect,
		Aliases: []string{"project_info"},
		Start: func(req Request) (Pending, error) {
			kinds, err := catalog.ParseKinds(req.Kinds)
			if err != nil {
				return nil, BadRequest("%v", err)
			}
			output := req.OutputPath
			if output == "" {
				output = opts.DefaultOutput
			}
			if output == "" {
				return nil, BadRequest("outputPath is required")
			}
			if opts.Resolve != nil {
				output = opts.Resolve(output)
			}
			run := orch.Start(collect.Request{
				Scope:     catalog.Scope{Dir: req.ScopeDir(), Kinds: kinds},
				OutputDir: output,
			})
			return RunPending{Run: run}, nil
		},
	}
}

// RunPending adapts a collection run to Pending.
type RunPending struct {
	Run *collect.Run
}

// Done implements Pending.
func (p RunPending) Done() <-chan struct{} {
	return p.Run.Done()
}

// Result implements Pending.
func (p RunPending) Result() (Response, error) {
	result, err := p.Run.Outcome()
	counts := result.Counts
	if err != nil {
		return Response{Success: false, Message: err.Error(), RunID: p.Run.ID(), Counts: &counts}, err
	}
	return Response{
		Success: true,
		Message: fmt.Sprintf("collected %d items into %s", len(result.Items), result.OutputDir),
		RunID:   p.Run.ID(),
		Counts:  &counts,
	}, nil
}

// ID exposes the run ID for logging.
func (p RunPending) ID() string {
	return p.Run.ID()
}
