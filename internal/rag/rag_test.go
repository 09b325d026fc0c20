package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/nidhogg/modelhub/internal/embedding"
	"github.com/nidhogg/modelhub/internal/vectorstore"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	snap, err := vectorstore.NewFileSnapshot(t.TempDir())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	idx, err := vectorstore.NewMemoryIndex(context.Background(), embedding.NewHashProvider(256), snap, zap.NewNop())
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	return NewEngine(idx, DefaultConfig(), zap.NewNop())
}

func TestQuery_EmptyIndex(t *testing.T) {
	e := newTestEngine(t)
	ans, err := e.Query(context.Background(), "what is in here?", 3)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if ans.Found || ans.Context != "" || ans.Sources == nil || len(ans.Sources) != 0 {
		t.Errorf("answer = %+v", ans)
	}
	if FormatContext(ans) != "" {
		t.Error("empty answer should format to nothing")
	}
}

func TestIngest_Chunks(t *testing.T) {
	var sb strings.Builder
	for i := 0; sb.Len() < 1200; i++ {
		fmt.Fprintf(&sb, "tok%04d ", i)
	}
	text := sb.String()[:1200]

	e := newTestEngine(t)
	ctx := context.Background()
	ids, err := e.Ingest(ctx, text, map[string]any{"author": "tester"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("got %d chunks, want 3", len(ids))
	}
	stats, _ := e.Stats(ctx)
	if stats.Count != 3 {
		t.Errorf("count = %d, want 3", stats.Count)
	}

	ans, err := e.Query(ctx, "tok", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for _, src := range ans.Sources {
		if src.Metadata[KeyTotalChunks] != 3 || src.Metadata["author"] != "tester" {
			t.Errorf("metadata = %v", src.Metadata)
		}
	}
	for _, part := range strings.Split(ans.Context, Separator) {
		if utf8.RuneCountInString(part) > 500 {
			t.Errorf("chunk of %d chars", utf8.RuneCountInString(part))
		}
	}
}

func TestIngest_Empty(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Ingest(context.Background(), "  \n ", nil); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestQuery_Ranking(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.IngestSource(ctx, "Goroutines are lightweight threads managed by the runtime", "go.md", "file")
	e.IngestSource(ctx, "Bread gets baked from flour water and yeast", "baking.md", "file")
	e.IngestSource(ctx, "Channels connect goroutines so they can communicate", "go.md", "file")

	ans, err := e.Query(ctx, "how do goroutines communicate over channels", 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !ans.Found {
		t.Fatal("expected a match")
	}
	if !strings.HasPrefix(ans.Context, "Channels connect goroutines") {
		t.Errorf("best passage should come first, context = %q", ans.Context)
	}
	for i := 1; i < len(ans.Sources); i++ {
		if ans.Sources[i].Similarity > ans.Sources[i-1].Similarity {
			t.Error("sources not in similarity order")
		}
	}
	for _, s := range ans.Sources {
		if s.Metadata[KeySource] == "baking.md" {
			t.Error("unrelated passage returned")
		}
		if scaled := s.Similarity * 1000; math.Abs(scaled-math.Round(scaled)) > 1e-6 {
			t.Errorf("similarity %v not rounded to 3 places", s.Similarity)
		}
	}

	formatted := FormatContext(ans)
	if !strings.Contains(formatted, "1. [go.md]") {
		t.Errorf("formatted context = %q", formatted)
	}
}

func TestDeleteSourceAndClear(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.IngestSource(ctx, "first file content", "a.txt", "file")
	ids, _ := e.IngestSource(ctx, "second file content", "b.txt", "file")

	n, err := e.DeleteSource(ctx, "a.txt")
	if err != nil || n != 1 {
		t.Fatalf("delete source: %d, %v", n, err)
	}
	if n, _ := e.DeleteSource(ctx, "a.txt"); n != 0 {
		t.Errorf("second delete removed %d", n)
	}

	ok, err := e.Delete(ctx, ids[0])
	if err != nil || !ok {
		t.Fatalf("delete: %v, %v", ok, err)
	}

	e.Ingest(ctx, "something else", nil)
	if err := e.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	stats, _ := e.Stats(ctx)
	if stats.Count != 0 {
		t.Errorf("count = %d", stats.Count)
	}
}
