package collect

import (
	"sort"
	"sync"
	"time"

	"github.com/kingrea/editorbridge/internal/catalog"
	"github.com/kingrea/editorbridge/internal/cohort"
	"github.com/kingrea/editorbridge/internal/logbook"
)

// Request describes one collection.
type Request struct {
	Scope     catalog.Scope
	OutputDir string
}

// Counts is a run's accounting.
type Counts struct {
	Enumerated  int `json:"enumerated" cbor:"enumerated"`
	Skipped     int `json:"skipped" cbor:"skipped"`
	Unsupported int `json:"unsupported" cbor:"unsupported"`
	Succeeded   int `json:"succeeded" cbor:"succeeded"`
	Failed      int `json:"failed" cbor:"failed"`
}

// Result is the aggregated outcome handed to persistence and to the caller.
// Items are the successful ones, ordered by ID.
type Result struct {
	RunID     string
	Scope     catalog.Scope
	OutputDir string
	Items     []catalog.Item
	Counts    Counts
}

// State is where a run is in its lifecycle.
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	ID         string    `json:"id" cbor:"id"`
	Scope      string    `json:"scope" cbor:"scope"`
	OutputDir  string    `json:"outputDir" cbor:"outputDir"`
	State      State     `json:"state" cbor:"state"`
	Target     int       `json:"target" cbor:"target"`
	Remaining  int       `json:"remaining" cbor:"remaining"`
	Counts     Counts    `json:"counts" cbor:"counts"`
	Error      string    `json:"error,omitempty" cbor:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt" cbor:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty" cbor:"finishedAt,omitempty"`
}

// Run is the future for one orchestrated collection. Done closes exactly once,
// after persistence has finished.
type Run struct {
	id        string
	req       Request
	startedAt time.Time
	journal   logbook.Journal
	done      chan struct{}

	mu         sync.Mutex
	state      State
	barrier    *cohort.Cohort
	items      []catalog.Item
	counts     Counts
	result     Result
	err        error
	finishedAt time.Time
	callbacks  []func(*Run)
}

func newRun(id string, req Request, now time.Time, journal logbook.Journal) *Run {
	return &Run{
		id:        id,
		req:       req,
		startedAt: now,
		journal:   journal,
		done:      make(chan struct{}),
		state:     StateRunning,
	}
}

// ID returns the run identifier.
func (r *Run) ID() string {
	return r.id
}

// Request returns what the run was started with.
func (r *Run) Request() Request {
	return r.req
}

// Done closes once the run has resolved.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Outcome returns the result and the run error. Before Done closes it reports
// the zero Result and nil.
func (r *Run) Outcome() (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

// OnComplete registers fn to run once the run resolves. If it already has, fn
// runs immediately on the caller's goroutine.
func (r *Run) OnComplete(fn func(*Run)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	if r.state == StateRunning {
		r.callbacks = append(r.callbacks, fn)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	fn(r)
}

// Snapshot reports live progress.
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Snapshot{
		ID:         r.id,
		Scope:      r.req.Scope.String(),
		OutputDir:  r.req.OutputDir,
		State:      r.state,
		Counts:     r.counts,
		StartedAt:  r.startedAt,
		FinishedAt: r.finishedAt,
	}
	if r.barrier != nil {
		snap.Target = r.barrier.Target()
		snap.Remaining = r.barrier.Remaining()
	}
	if r.err != nil {
		snap.Error = r.err.Error()
	}
	return snap
}

func (r *Run) attach(barrier *cohort.Cohort, enumerated, skipped int) {
	r.mu.Lock()
	r.barrier = barrier
	r.counts.Enumerated = enumerated
	r.counts.Skipped = skipped
	r.mu.Unlock()
}

func (r *Run) markUnsupported() {
	r.mu.Lock()
	r.counts.Unsupported++
	r.mu.Unlock()
}

func (r *Run) record(item catalog.Item, ok bool) {
	r.mu.Lock()
	if ok {
		r.items = append(r.items, item)
		r.counts.Succeeded++
	} else {
		r.counts.Failed++
	}
	r.mu.Unlock()
}

// aggregate copies the collected items into a Result.
func (r *Run) aggregate() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]catalog.Item, len(r.items))
	copy(items, r.items)
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return Result{
		RunID:     r.id,
		Scope:     r.req.Scope,
		OutputDir: r.req.OutputDir,
		Items:     items,
		Counts:    r.counts,
	}
}

func (r *Run) resolve(result Result, err error, now time.Time) []func(*Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning {
		return nil
	}
	if result.RunID == "" {
		result = Result{RunID: r.id, Scope: r.req.Scope, OutputDir: r.req.OutputDir, Counts: r.counts}
	}
	r.result = result
	r.err = err
	r.finishedAt = now
	if err != nil {
		r.state = StateFailed
	} else {
		r.state = StateSucceeded
	}
	callbacks := r.callbacks
	r.callbacks = nil
	close(r.done)
	return callbacks
}
