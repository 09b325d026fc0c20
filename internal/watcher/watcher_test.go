package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nidhogg/modelhub/internal/rag"
	"go.uber.org/zap"
)

// fakeIngester keeps the last text per source.
type fakeIngester struct {
	mu      sync.Mutex
	sources map[string]string
	kinds   map[string]string
}

func newFakeIngester() *fakeIngester {
	return &fakeIngester{sources: map[string]string{}, kinds: map[string]string{}}
}

func (f *fakeIngester) IngestSource(_ context.Context, text, source, kind string) ([]string, error) {
	if text == "" {
		return nil, rag.ErrEmptyDocument
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources[source] = text
	f.kinds[source] = kind
	return []string{source}, nil
}

func (f *fakeIngester) DeleteSource(_ context.Context, source string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sources[source]
	delete(f.sources, source)
	if ok {
		return 1, nil
	}
	return 0, nil
}

func (f *fakeIngester) get(source string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sources[source]
	return s, ok
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "alpha")
	writeFile(t, filepath.Join(dir, "b.MD"), "beta")
	writeFile(t, filepath.Join(dir, "c.pdf"), "ignored")
	writeFile(t, filepath.Join(dir, "empty.txt"), "")
	if err := os.Mkdir(filepath.Join(dir, "sub.txt"), 0o755); err != nil {
		t.Fatal(err)
	}

	ing := newFakeIngester()
	w := New(dir, nil, ing, zap.NewNop())
	n, err := w.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if n != 3 {
		t.Errorf("scanned %d files, want 3", n)
	}
	if s, _ := ing.get("a.txt"); s != "alpha" {
		t.Errorf("a.txt = %q", s)
	}
	if ing.kinds["b.MD"] != "md" {
		t.Errorf("kind = %q", ing.kinds["b.MD"])
	}
	if _, ok := ing.get("c.pdf"); ok {
		t.Error("pdf should be ignored")
	}
}

func TestSync_ReplacesAndRemoves(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	ing := newFakeIngester()
	w := New(dir, []string{"txt"}, ing, zap.NewNop())
	ctx := context.Background()

	writeFile(t, path, "first")
	if err := w.Sync(ctx, path); err != nil {
		t.Fatal(err)
	}
	writeFile(t, path, "second")
	if err := w.Sync(ctx, path); err != nil {
		t.Fatal(err)
	}
	if s, _ := ing.get("notes.txt"); s != "second" {
		t.Errorf("got %q", s)
	}

	// blank content clears the source
	writeFile(t, path, "")
	if err := w.Sync(ctx, path); err != nil {
		t.Fatal(err)
	}
	if _, ok := ing.get("notes.txt"); ok {
		t.Error("blank file should remove the source")
	}

	writeFile(t, path, "third")
	w.Sync(ctx, path)
	os.Remove(path)
	if err := w.Sync(ctx, path); err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if _, ok := ing.get("notes.txt"); ok {
		t.Error("missing file should remove the source")
	}
}

func TestRun_FollowsChanges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "existing.md"), "already here")

	ing := newFakeIngester()
	w := New(dir, nil, ing, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, func() bool { _, ok := ing.get("existing.md"); return ok })

	path := filepath.Join(dir, "new.txt")
	writeFile(t, path, "fresh content")
	waitFor(t, func() bool { s, _ := ing.get("new.txt"); return s == "fresh content" })

	os.Remove(path)
	waitFor(t, func() bool { _, ok := ing.get("new.txt"); return !ok })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
