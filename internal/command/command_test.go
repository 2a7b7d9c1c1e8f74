package command

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kingrea/editorbridge/internal/catalog"
	"github.com/kingrea/editorbridge/internal/collect"
	"github.com/kingrea/editorbridge/internal/host"
	"github.com/kingrea/editorbridge/internal/process"
)

func startLoop(t *testing.T) *host.Loop {
	t.Helper()
	loop := host.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop
}

func TestDecodeJSONAndCBOR(t *testing.T) {
	t.Parallel()
	req, err := Decode(KindNavigate, "application/json", []byte(`{"path":" Assets/Prefabs/Crate.prefab "}`))
	if err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if req.Kind != KindNavigate || req.Path != "Assets/Prefabs/Crate.prefab" {
		t.Fatalf("unexpected request %+v", req)
	}

	body, err := MarshalCBOR(map[string]any{"projectPath": "Assets/Props", "outputPath": "out", "kinds": []string{"prefab", " "}})
	if err != nil {
		t.Fatalf("marshal cbor: %v", err)
	}
	req, err = Decode(KindCollect, "application/cbor; charset=binary", body)
	if err != nil {
		t.Fatalf("decode cbor: %v", err)
	}
	if req.ScopeDir() != "Assets/Props" || req.OutputPath != "out" || len(req.Kinds) != 1 {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestDecodeRejectsBadPayloads(t *testing.T) {
	t.Parallel()
	cases := []struct {
		kind Kind
		body string
	}{
		{KindNavigate, ""},
		{KindNavigate, "{not json"},
		{KindNavigate, `{"path":""}`},
		{Kind(""), `{}`},
	}
	for _, tc := range cases {
		_, err := Decode(tc.kind, "", []byte(tc.body))
		decodeErr, ok := AsDecodeError(err)
		if !ok || decodeErr.Status != http.StatusBadRequest {
			t.Fatalf("%s %q: expected 400 decode error, got %v", tc.kind, tc.body, err)
		}
	}
	if _, err := Decode(KindCollect, "application/cbor", []byte{0xff, 0x00}); err == nil {
		t.Fatalf("expected malformed CBOR to fail")
	}
}

func TestEncodeHonoursAccept(t *testing.T) {
	t.Parallel()
	resp := Response{Success: true, Message: "ok", RunID: "r1"}
	data, contentType, err := Encode("text/html, application/cbor", resp)
	if err != nil || contentType != MediaTypeCBOR {
		t.Fatalf("expected cbor, got %s %v", contentType, err)
	}
	var decoded Response
	if err := UnmarshalCBOR(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != resp {
		t.Fatalf("expected %+v, got %+v", resp, decoded)
	}
	data, contentType, err = Encode("", resp)
	if err != nil || contentType != MediaTypeJSON || string(data) != "{\"success\":true,\"message\":\"ok\",\"runId\":\"r1\"}\n" {
		t.Fatalf("unexpected json %s %q %v", contentType, data, err)
	}
}

func TestRegistryResolvesAliasesAndRejectsDuplicates(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	ping := Command{Kind: "ping", Sync: func(context.Context, Request) (Response, error) { return Response{Success: true}, nil }}
	if err := reg.Register(ping); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(ping); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := reg.Register(Command{Kind: "both", Sync: ping.Sync, Start: func(Request) (Pending, error) { return nil, nil }}); err == nil {
		t.Fatalf("expected ambiguous command to fail")
	}
	if err := reg.Register(Command{Kind: "job", Aliases: []string{"legacy_job"}, Start: func(Request) (Pending, error) { return nil, nil }}); err != nil {
		t.Fatalf("register job: %v", err)
	}
	cmd, ok := reg.Resolve("legacy_job")
	if !ok || cmd.Kind != "job" || !cmd.Orchestrated() {
		t.Fatalf("expected alias to resolve to job, got %+v", cmd)
	}
	if _, ok := reg.Resolve("bogus"); ok {
		t.Fatalf("expected unknown name to miss")
	}
	names := reg.Names()
	if len(names) != 3 || names[0] != "job" || names[2] != "ping" {
		t.Fatalf("unexpected names %v", names)
	}
}

type fakeSelector struct {
	known map[string]bool
	err   error
}

func (f fakeSelector) Select(path string) (bool, error) {
	return f.known[path], f.err
}

type countingForeground struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *countingForeground) BringToFront() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *countingForeground) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestNavigateSelectsThenRaises(t *testing.T) {
	t.Parallel()
	loop := startLoop(t)
	fg := &countingForeground{err: errors.New("no window")}
	cmd := Navigate(loop, fakeSelector{known: map[string]bool{"Assets/A.prefab": true}}, fg, nil)
	ctx := context.Background()

	resp, err := cmd.Sync(ctx, Request{Kind: KindNavigate, Path: "Assets/A.prefab"})
	if err != nil || !resp.Success || resp.Message != "Path received" {
		t.Fatalf("unexpected response %+v %v", resp, err)
	}
	if err := loop.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("flush loop: %v", err)
	}
	if fg.count() != 1 {
		t.Fatalf("expected one raise, got %d", fg.count())
	}

	resp, err = cmd.Sync(ctx, Request{Kind: KindNavigate, Path: "Assets/B.prefab"})
	if err != nil || resp.Success {
		t.Fatalf("expected not-found failure envelope, got %+v %v", resp, err)
	}

	broken := Navigate(loop, fakeSelector{err: errors.New("database locked")}, nil, nil)
	if _, err := broken.Sync(ctx, Request{Kind: KindNavigate, Path: "x"}); err == nil {
		t.Fatalf("expected selector error to surface")
	}
}

func TestCollectStartsRunAndReportsCounts(t *testing.T) {
	t.Parallel()
	loop := startLoop(t)
	source := catalog.SourceFunc(func(catalog.Scope) ([]catalog.Item, error) {
		return []catalog.Item{{ID: "a.mat", Name: "a"}, {ID: "b.mat", Name: "b"}}, nil
	})
	classifier := catalog.ClassifierFunc(func(catalog.Item) (catalog.Kind, bool) { return catalog.KindMaterial, true })
	proc := process.Func(func(item catalog.Item, _ string, done func(process.Outcome)) {
		go done(process.Outcome{})
	})
	orch := collect.New(loop, source, classifier, proc, nil)
	projectDir := t.TempDir()
	cmd := Collect(orch, CollectOptions{
		DefaultOutput: "Assets/CollectedInfo",
		Resolve:       func(p string) string { return filepath.Join(projectDir, p) },
	})

	if _, err := cmd.Start(Request{Kind: KindCollect, Kinds: []string{"sprite"}}); err == nil {
		t.Fatalf("expected unknown kind to be rejected")
	} else if _, ok := AsDecodeError(err); !ok {
		t.Fatalf("expected decode error, got %v", err)
	}

	pending, err := cmd.Start(Request{Kind: KindCollect})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-pending.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("collect did not finish")
	}
	resp, err := pending.Result()
	if err != nil || !resp.Success || resp.RunID == "" {
		t.Fatalf("unexpected response %+v %v", resp, err)
	}
	if resp.Counts == nil || resp.Counts.Succeeded != 2 {
		t.Fatalf("expected counts, got %+v", resp.Counts)
	}

	none := Collect(orch, CollectOptions{})
	if _, err := none.Start(Request{Kind: KindCollect}); err == nil {
		t.Fatalf("expected missing outputPath to be rejected")
	}
}
