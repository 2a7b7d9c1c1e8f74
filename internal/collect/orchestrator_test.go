package collect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/kingrea/editorbridge/internal/catalog"
	"github.com/kingrea/editorbridge/internal/host"
	"github.com/kingrea/editorbridge/internal/logbook"
	"github.com/kingrea/editorbridge/internal/process"
	"github.com/kingrea/editorbridge/internal/sink"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startLoop(t *testing.T) *host.Loop {
	t.Helper()
	loop := host.New()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("loop run: %v", err)
		}
	})
	return loop
}

func listSource(n int) catalog.Source {
	return catalog.SourceFunc(func(catalog.Scope) ([]catalog.Item, error) {
		items := make([]catalog.Item, n)
		for i := range items {
			id := fmt.Sprintf("Prefabs/item-%03d.prefab", i)
			items[i] = catalog.Item{ID: id, Name: fmt.Sprintf("item-%03d", i), Path: "Assets/" + id}
		}
		return items, nil
	})
}

var acceptAll = catalog.ClassifierFunc(func(catalog.Item) (catalog.Kind, bool) {
	return catalog.KindPrefab, true
})

// asyncProcessor completes every item on its own goroutine.
func asyncProcessor(calls *atomic.Int64, fail func(catalog.Item) bool) process.Processor {
	return process.Func(func(item catalog.Item, outputDir string, done func(process.Outcome)) {
		calls.Add(1)
		go func() {
			if fail != nil && fail(item) {
				done(process.Outcome{Err: errors.New("render failed")})
				return
			}
			done(process.Outcome{Artifacts: []string{filepath.Join(outputDir, item.Name+".png")}})
		}()
	})
}

type recordingSink struct {
	mu      sync.Mutex
	batches []sink.Batch
	err     error
}

func (s *recordingSink) Write(_ context.Context, batch sink.Batch, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func await(t *testing.T, run *Run) (Result, error) {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("run %s did not resolve", run.ID())
	}
	return run.Outcome()
}

func TestRunProcessesMinOfItemsAndLimit(t *testing.T) {
	loop := startLoop(t)
	for _, tc := range []struct{ items, limit, want int }{
		{items: 5, limit: 3, want: 3},
		{items: 3, limit: 5, want: 3},
		{items: 1200, limit: DefaultLimit, want: 1000},
	} {
		var calls atomic.Int64
		out := &recordingSink{}
		orch := New(loop, listSource(tc.items), acceptAll, asyncProcessor(&calls, nil), out, WithLimit(tc.limit))
		result, err := await(t, orch.Start(Request{OutputDir: t.TempDir()}))
		if err != nil {
			t.Fatalf("items=%d: unexpected error %v", tc.items, err)
		}
		if got := int(calls.Load()); got != tc.want {
			t.Fatalf("items=%d limit=%d: expected %d processor calls, got %d", tc.items, tc.limit, tc.want, got)
		}
		if len(result.Items) != tc.want || result.Counts.Skipped != tc.items-tc.want {
			t.Fatalf("items=%d: unexpected result counts %+v (%d items)", tc.items, result.Counts, len(result.Items))
		}
		if result.Counts.Enumerated != tc.items {
			t.Fatalf("expected enumerated %d, got %d", tc.items, result.Counts.Enumerated)
		}
		if out.count() != 1 {
			t.Fatalf("expected one persisted batch, got %d", out.count())
		}
	}
}

func TestRunIdentifiersAreStableAcrossRuns(t *testing.T) {
	loop := startLoop(t)
	root := filepath.Join(t.TempDir(), "Assets")
	for _, rel := range []string{"Prefabs/Crate.prefab", "Materials/Wood.mat", "Scenes/Main.unity", "Prefabs/Barrel.prefab"} {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(rel), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	var calls atomic.Int64
	orch := New(loop, catalog.FileSource{Root: root}, catalog.ExtensionClassifier{}, asyncProcessor(&calls, nil), nil)

	first, err := await(t, orch.Start(Request{OutputDir: t.TempDir()}))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := await(t, orch.Start(Request{OutputDir: t.TempDir()}))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(first.Items) != 4 || len(second.Items) != len(first.Items) {
		t.Fatalf("expected 4 items in both runs, got %d and %d", len(first.Items), len(second.Items))
	}
	for i := range first.Items {
		if first.Items[i].ID != second.Items[i].ID || first.Items[i].Kind != second.Items[i].Kind {
			t.Fatalf("item %d differs: %+v vs %+v", i, first.Items[i], second.Items[i])
		}
	}
	if first.RunID == second.RunID {
		t.Fatalf("expected distinct run IDs")
	}
}

func TestRunCollectsConcurrentCompletions(t *testing.T) {
	loop := startLoop(t)
	var calls atomic.Int64
	orch := New(loop, listSource(100), acceptAll, asyncProcessor(&calls, nil), nil)
	run := orch.Start(Request{OutputDir: t.TempDir()})
	result, err := await(t, run)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	seen := make(map[string]bool, 100)
	for _, item := range result.Items {
		if seen[item.ID] {
			t.Fatalf("duplicate item %s", item.ID)
		}
		seen[item.ID] = true
		if len(item.Artifacts) != 1 || item.Kind != catalog.KindPrefab {
			t.Fatalf("expected artifacts and kind on %+v", item)
		}
	}
	if len(seen) != 100 {
		t.Fatalf("expected 100 distinct items, got %d", len(seen))
	}
	if snap := run.Snapshot(); snap.Remaining != 0 || snap.Target != 100 || snap.State != StateSucceeded {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestRunEmptyScopeResolvesImmediately(t *testing.T) {
	loop := startLoop(t)
	var calls atomic.Int64
	out := &recordingSink{}
	orch := New(loop, listSource(0), acceptAll, asyncProcessor(&calls, nil), out)
	result, err := await(t, orch.Start(Request{OutputDir: t.TempDir()}))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(result.Items) != 0 || calls.Load() != 0 {
		t.Fatalf("expected no work, got %d items and %d calls", len(result.Items), calls.Load())
	}
	if out.count() != 1 {
		t.Fatalf("expected empty result to be persisted once, got %d", out.count())
	}
}

func TestRunItemFailureIsCountedNotEscalated(t *testing.T) {
	loop := startLoop(t)
	var calls atomic.Int64
	failSecond := func(item catalog.Item) bool { return item.Name == "item-001" }
	orch := New(loop, listSource(3), acceptAll, asyncProcessor(&calls, failSecond), &recordingSink{})
	run := orch.Start(Request{OutputDir: t.TempDir()})
	result, err := await(t, run)
	if err != nil {
		t.Fatalf("expected run success despite item failure, got %v", err)
	}
	if len(result.Items) != 2 || result.Items[0].Name != "item-000" || result.Items[1].Name != "item-002" {
		t.Fatalf("expected items 1 and 3, got %+v", result.Items)
	}
	if result.Counts.Failed != 1 || result.Counts.Succeeded != 2 {
		t.Fatalf("unexpected counts %+v", result.Counts)
	}
	if snap := run.Snapshot(); snap.Remaining != 0 {
		t.Fatalf("expected cohort to reach zero, got %d", snap.Remaining)
	}
}

func TestRunIgnoresDuplicateCompletion(t *testing.T) {
	loop := startLoop(t)
	book, err := logbook.New(filepath.Join(t.TempDir(), "collect.log"))
	if err != nil {
		t.Fatal(err)
	}
	twice := process.Func(func(item catalog.Item, _ string, done func(process.Outcome)) {
		go func() {
			done(process.Outcome{})
			done(process.Outcome{Err: errors.New("late")})
		}()
	})
	orch := New(loop, listSource(4), acceptAll, twice, nil, WithJournal(book), WithIDs(func() string { return "dup-run" }))
	result, err := await(t, orch.Start(Request{OutputDir: t.TempDir()}))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if result.Counts.Succeeded != 4 || result.Counts.Failed != 0 {
		t.Fatalf("expected first completion to win, got %+v", result.Counts)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		warnings := 0
		for _, line := range book.Entries("dup-run") {
			if strings.Contains(line, "WARN") && strings.Contains(line, "more than once") {
				warnings++
			}
		}
		if warnings == 4 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 4 duplicate warnings, got %d", warnings)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunSkipsUnsupportedItems(t *testing.T) {
	loop := startLoop(t)
	var calls atomic.Int64
	onlyEven := catalog.ClassifierFunc(func(item catalog.Item) (catalog.Kind, bool) {
		var n int
		fmt.Sscanf(item.Name, "item-%d", &n)
		return catalog.KindMaterial, n%2 == 0
	})
	orch := New(loop, listSource(6), onlyEven, asyncProcessor(&calls, nil), nil)
	result, err := await(t, orch.Start(Request{OutputDir: t.TempDir()}))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if calls.Load() != 3 || result.Counts.Unsupported != 3 {
		t.Fatalf("expected 3 processed and 3 unsupported, got %d and %+v", calls.Load(), result.Counts)
	}
}

func TestRunKindFilterCountsAsUnsupported(t *testing.T) {
	loop := startLoop(t)
	var calls atomic.Int64
	orch := New(loop, listSource(2), acceptAll, asyncProcessor(&calls, nil), nil)
	scope := catalog.Scope{Kinds: []catalog.Kind{catalog.KindMaterial}}
	result, err := await(t, orch.Start(Request{Scope: scope, OutputDir: t.TempDir()}))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if calls.Load() != 0 || result.Counts.Unsupported != 2 {
		t.Fatalf("expected prefabs to be filtered, got %d calls and %+v", calls.Load(), result.Counts)
	}
}

func TestRunEnumerationFailureStartsNothing(t *testing.T) {
	loop := startLoop(t)
	var calls atomic.Int64
	out := &recordingSink{}
	missing := catalog.FileSource{Root: filepath.Join(t.TempDir(), "Assets")}
	orch := New(loop, missing, acceptAll, asyncProcessor(&calls, nil), out)
	_, err := await(t, orch.Start(Request{Scope: catalog.Scope{Dir: "Nope"}, OutputDir: t.TempDir()}))
	var enumErr *EnumerationError
	if !errors.As(err, &enumErr) || !errors.Is(err, catalog.ErrScopeNotFound) {
		t.Fatalf("expected enumeration error, got %v", err)
	}
	if calls.Load() != 0 || out.count() != 0 {
		t.Fatalf("expected no processing or persistence")
	}
}

func TestRunPersistenceFailureFailsRun(t *testing.T) {
	loop := startLoop(t)
	var calls atomic.Int64
	out := &recordingSink{err: errors.New("disk full")}
	orch := New(loop, listSource(2), acceptAll, asyncProcessor(&calls, nil), out)
	run := orch.Start(Request{OutputDir: t.TempDir()})
	result, err := await(t, run)
	var persistErr *PersistenceError
	if !errors.As(err, &persistErr) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected the collected items to be reported, got %d", len(result.Items))
	}
	if run.Snapshot().State != StateFailed {
		t.Fatalf("expected failed state")
	}
}

func TestRunFailsWhenLoopStopped(t *testing.T) {
	loop := host.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	var calls atomic.Int64
	orch := New(loop, listSource(1), acceptAll, asyncProcessor(&calls, nil), nil)
	_, err := await(t, orch.Start(Request{OutputDir: t.TempDir()}))
	if !errors.Is(err, host.ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestOnCompleteAndHistory(t *testing.T) {
	loop := startLoop(t)
	var calls atomic.Int64
	orch := New(loop, listSource(1), acceptAll, asyncProcessor(&calls, nil), nil, WithHistory(2))

	var ids []string
	for i := 0; i < 3; i++ {
		run := orch.Start(Request{OutputDir: t.TempDir()})
		fired := make(chan struct{})
		run.OnComplete(func(*Run) { close(fired) })
		await(t, run)
		select {
		case <-fired:
		case <-time.After(2 * time.Second):
			t.Fatalf("OnComplete did not fire")
		}
		late := false
		run.OnComplete(func(*Run) { late = true })
		if !late {
			t.Fatalf("expected OnComplete after resolution to run immediately")
		}
		ids = append(ids, run.ID())
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(orch.Runs()) != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected history bounded to 2, got %d", len(orch.Runs()))
		}
		time.Sleep(10 * time.Millisecond)
	}
	snaps := orch.Runs()
	if snaps[0].ID != ids[2] || snaps[1].ID != ids[1] {
		t.Fatalf("expected newest first, got %s, %s", snaps[0].ID, snaps[1].ID)
	}
	if _, ok := orch.Lookup(ids[0]); ok {
		t.Fatalf("expected oldest run to be forgotten")
	}
}
