package collect

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/editorbridge/internal/catalog"
	"github.com/kingrea/editorbridge/internal/cohort"
	"github.com/kingrea/editorbridge/internal/host"
	"github.com/kingrea/editorbridge/internal/logbook"
	"github.com/kingrea/editorbridge/internal/process"
	"github.com/kingrea/editorbridge/internal/sink"
)

const (
	// DefaultLimit caps how many items one run processes.
	DefaultLimit = 1000
	// DefaultHistory is how many finished runs stay visible.
	DefaultHistory = 32
)

// Logger is satisfied by the daemon's file logger.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger routes diagnostics to logger.
func WithLogger(logger Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithJournal appends per-run entries to book.
func WithJournal(book *logbook.Logbook) Option {
	return func(o *Orchestrator) {
		o.journal = book
	}
}

// WithLimit caps the number of items a run processes. Values <= 0 keep the
// default.
func WithLimit(limit int) Option {
	return func(o *Orchestrator) {
		if limit > 0 {
			o.limit = limit
		}
	}
}

// WithHistory bounds how many finished runs Runs reports. Negative values
// keep the default.
func WithHistory(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.history = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.now = clock
		}
	}
}

// WithIDs overrides run ID generation.
func WithIDs(next func() string) Option {
	return func(o *Orchestrator) {
		if next != nil {
			o.newID = next
		}
	}
}

// Orchestrator fans a collection out to a processor and joins the results.
// Runs are independent: each owns its cohort, mutex and result.
type Orchestrator struct {
	loop       *host.Loop
	source     catalog.Source
	classifier catalog.Classifier
	processor  process.Processor
	sink       sink.Sink

	logger  Logger
	journal *logbook.Logbook
	limit   int
	history int
	now     func() time.Time
	newID   func() string

	mu       sync.Mutex
	active   map[string]*Run
	order    []string
	finished []*Run
}

// New wires an orchestrator. A nil sink skips persistence.
func New(loop *host.Loop, source catalog.Source, classifier catalog.Classifier, processor process.Processor, out sink.Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		loop:       loop,
		source:     source,
		classifier: classifier,
		processor:  processor,
		sink:       out,
		logger:     nopLogger{},
		limit:      DefaultLimit,
		history:    DefaultHistory,
		now:        time.Now,
		newID:      uuid.NewString,
		active:     make(map[string]*Run),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Limit reports the per-run item cap.
func (o *Orchestrator) Limit() int {
	return o.limit
}

// Start begins a run and returns its future immediately. The run's work is
// posted to the host loop.
func (o *Orchestrator) Start(req Request) *Run {
	id := o.newID()
	run := newRun(id, req, o.now(), o.journal.Run(id))
	o.mu.Lock()
	o.active[id] = run
	o.order = append(o.order, id)
	o.mu.Unlock()

	run.journal.Info("run started: scope=%s output=%s", req.Scope, req.OutputDir)
	if err := o.loop.Post(func() { o.begin(run) }); err != nil {
		o.finish(run, Result{}, fmt.Errorf("collect: schedule run: %w", err))
	}
	return run
}

// Lookup returns an active or remembered run.
func (o *Orchestrator) Lookup(id string) (*Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if run, ok := o.active[id]; ok {
		return run, true
	}
	for _, run := range o.finished {
		if run.id == id {
			return run, true
		}
	}
	return nil, false
}

// Runs lists active runs oldest first, then finished runs newest first.
func (o *Orchestrator) Runs() []Snapshot {
	o.mu.Lock()
	runs := make([]*Run, 0, len(o.order)+len(o.finished))
	for _, id := range o.order {
		runs = append(runs, o.active[id])
	}
	for i := len(o.finished) - 1; i >= 0; i-- {
		runs = append(runs, o.finished[i])
	}
	o.mu.Unlock()
	snaps := make([]Snapshot, 0, len(runs))
	for _, run := range runs {
		snaps = append(snaps, run.Snapshot())
	}
	return snaps
}

// begin runs on the host loop.
func (o *Orchestrator) begin(run *Run) {
	req := run.req
	if req.OutputDir == "" {
		o.finish(run, Result{}, fmt.Errorf("collect: output directory is required"))
		return
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		o.finish(run, Result{}, &PersistenceError{Dir: req.OutputDir, Err: err})
		return
	}
	items, err := o.source.Find(req.Scope)
	if err != nil {
		o.finish(run, Result{}, &EnumerationError{Scope: req.Scope.String(), Err: err})
		return
	}
	enumerated := len(items)
	skipped := 0
	if len(items) > o.limit {
		skipped = len(items) - o.limit
		items = items[:o.limit]
		run.journal.Warn("scope holds %d items, processing the first %d", enumerated, o.limit)
	}

	barrier := cohort.New(len(items))
	run.attach(barrier, enumerated, skipped)
	go o.await(run, barrier)

	for _, item := range items {
		kind, ok := o.classifier.Classify(item)
		if !ok || !req.Scope.Allows(kind) {
			run.markUnsupported()
			barrier.Signal()
			continue
		}
		item.Kind = kind
		o.processor.Process(item, req.OutputDir, o.completion(run, barrier, item))
	}
}

// await parks until every item has reported, then hands finalization back to
// the host loop.
func (o *Orchestrator) await(run *Run, barrier *cohort.Cohort) {
	<-barrier.Done()
	if err := o.loop.Post(func() { o.persist(run) }); err != nil {
		o.finish(run, run.aggregate(), fmt.Errorf("collect: schedule persistence: %w", err))
	}
}

// completion builds the done continuation for one item. Only the first call
// counts; repeats are logged and dropped so the cohort never over-signals.
func (o *Orchestrator) completion(run *Run, barrier *cohort.Cohort, item catalog.Item) func(process.Outcome) {
	var once sync.Once
	return func(out process.Outcome) {
		first := false
		once.Do(func() {
			first = true
			if out.Succeeded() {
				item.Artifacts = append([]string(nil), out.Artifacts...)
				item.Digest = out.Digest
				run.record(item, true)
			} else {
				run.record(item, false)
				run.journal.Warn("item %s failed: %v", item.ID, out.Err)
				o.logger.Printf("collect: run %s item %s failed: %v", run.id, item.ID, out.Err)
			}
			barrier.Signal()
		})
		if !first {
			run.journal.Warn("item %s reported completion more than once", item.ID)
			o.logger.Printf("collect: run %s item %s completed twice; ignoring", run.id, item.ID)
		}
	}
}

// persist runs on the host loop once the cohort has fired.
func (o *Orchestrator) persist(run *Run) {
	result := run.aggregate()
	if o.sink != nil {
		batch := sink.Batch{
			RunID:       result.RunID,
			Scope:       result.Scope.String(),
			Items:       result.Items,
			Enumerated:  result.Counts.Enumerated,
			Skipped:     result.Counts.Skipped,
			Unsupported: result.Counts.Unsupported,
			Failed:      result.Counts.Failed,
			FinishedAt:  o.now(),
		}
		if err := o.sink.Write(context.Background(), batch, result.OutputDir); err != nil {
			o.finish(run, result, &PersistenceError{Dir: result.OutputDir, Err: err})
			return
		}
	}
	o.finish(run, result, nil)
}

func (o *Orchestrator) finish(run *Run, result Result, err error) {
	callbacks := run.resolve(result, err, o.now())
	o.retire(run)
	counts := run.Snapshot().Counts
	if err != nil {
		run.journal.Error("run failed: %v", err)
		o.logger.Printf("collect: run %s failed: %v", run.id, err)
	} else {
		run.journal.Info("run finished: %d succeeded, %d failed, %d unsupported, %d skipped",
			counts.Succeeded, counts.Failed, counts.Unsupported, counts.Skipped)
		o.logger.Printf("collect: run %s finished with %d items", run.id, counts.Succeeded)
	}
	for _, fn := range callbacks {
		fn(run)
	}
}

func (o *Orchestrator) retire(run *Run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.active[run.id]; !ok {
		return
	}
	delete(o.active, run.id)
	for i, id := range o.order {
		if id == run.id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	if o.history == 0 {
		return
	}
	o.finished = append(o.finished, run)
	if over := len(o.finished) - o.history; over > 0 {
		o.finished = append([]*Run(nil), o.finished[over:]...)
	}
}
