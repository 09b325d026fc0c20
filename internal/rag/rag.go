package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/nidhogg/modelhub/internal/chunker"
	"github.com/nidhogg/modelhub/internal/vectorstore"
	"go.uber.org/zap"
)

// Metadata keys added by the engine.
const (
	KeyChunkIndex  = "chunk_index"
	KeyTotalChunks = "total_chunks"
	KeySource      = "source"
	KeyType        = "type"
)

// Separator joins retrieved passages in Answer.Context.
const Separator = "\n\n---\n\n"

// ErrEmptyDocument is returned when ingested text has no content.
var ErrEmptyDocument = errors.New("document is empty")

// Config tunes chunking and retrieval.
type Config struct {
	ChunkSize     int     `json:"chunk_size" yaml:"chunk_size" toml:"chunk_size"`
	Overlap       int     `json:"overlap" yaml:"overlap" toml:"overlap"`
	TopK          int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	MinSimilarity float64 `json:"min_similarity" yaml:"min_similarity" toml:"min_similarity"`
}

// DefaultConfig returns chunks of 500 with 50 overlap, top 3, threshold 0.1.
func DefaultConfig() Config {
	return Config{
		ChunkSize:     chunker.DefaultSize,
		Overlap:       chunker.DefaultOverlap,
		TopK:          3,
		MinSimilarity: 0.1,
	}
}

// Source describes one passage behind an answer.
type Source struct {
	ID         string         `json:"id"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata"`
}

// Answer is the retrieval result for a question.
type Answer struct {
	Found    bool     `json:"found"`
	Context  string   `json:"context"`
	Sources  []Source `json:"sources"`
	passages []vectorstore.Result
}

// Engine chunks, embeds and stores documents, and retrieves context for
// questions.
type Engine struct {
	index    vectorstore.Index
	splitter chunker.Splitter
	cfg      Config
	logger   *zap.Logger
}

// NewEngine creates a retrieval engine over index.
func NewEngine(index vectorstore.Index, cfg Config, logger *zap.Logger) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	return &Engine{
		index:    index,
		splitter: chunker.New(cfg.ChunkSize, cfg.Overlap),
		cfg:      cfg,
		logger:   logger,
	}
}

// Ingest splits text into chunks and stores each with metadata plus its
// position. It returns the chunk IDs in order.
func (e *Engine) Ingest(ctx context.Context, text string, metadata map[string]any) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}
	chunks := e.splitter.Split(text)

	entries := make([]vectorstore.Entry, len(chunks))
	for i, c := range chunks {
		meta := make(map[string]any, len(metadata)+2)
		for k, v := range metadata {
			meta[k] = v
		}
		meta[KeyChunkIndex] = i
		meta[KeyTotalChunks] = len(chunks)
		entries[i] = vectorstore.Entry{Content: c, Metadata: meta}
	}

	ids, err := e.index.InsertMany(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("ingest %d chunks: %w", len(chunks), err)
	}
	e.logger.Info("document ingested",
		zap.Int("chunks", len(ids)),
		zap.Int("chars", len(text)))
	return ids, nil
}

// IngestSource ingests text tagged with where it came from, such as a file
// name or URL, and its kind ("file", "web", ...).
func (e *Engine) IngestSource(ctx context.Context, text, source, kind string) ([]string, error) {
	return e.Ingest(ctx, text, map[string]any{KeySource: source, KeyType: kind})
}

// Query retrieves up to k passages for question. A non-positive k uses the
// configured default.
func (e *Engine) Query(ctx context.Context, question string, k int) (*Answer, error) {
	if k <= 0 {
		k = e.cfg.TopK
	}
	results, err := e.index.Search(ctx, question, k, e.cfg.MinSimilarity)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	ans := &Answer{Sources: []Source{}, passages: results}
	if len(results) == 0 {
		return ans, nil
	}

	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Content
		ans.Sources = append(ans.Sources, Source{
			ID:         r.ID,
			Similarity: math.Round(r.Similarity*1000) / 1000,
			Metadata:   r.Metadata,
		})
	}
	ans.Found = true
	ans.Context = strings.Join(parts, Separator)
	return ans, nil
}

// Delete removes one chunk by ID.
func (e *Engine) Delete(ctx context.Context, id string) (bool, error) {
	return e.index.Delete(ctx, id)
}

// DeleteSource removes every chunk ingested from source.
func (e *Engine) DeleteSource(ctx context.Context, source string) (int, error) {
	n, err := e.index.DeleteWhere(ctx, KeySource, source)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info("source removed", zap.String("source", source), zap.Int("chunks", n))
	}
	return n, nil
}

// Clear removes every document.
func (e *Engine) Clear(ctx context.Context) error {
	return e.index.Clear(ctx)
}

// Stats reports the underlying index statistics.
func (e *Engine) Stats(ctx context.Context) (vectorstore.Stats, error) {
	return e.index.Stats(ctx)
}

// FormatContext renders an answer into a prompt-friendly string.
func FormatContext(ans *Answer) string {
	if ans == nil || !ans.Found {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Retrieved Context\n\n")
	for i, r := range ans.passages {
		label := r.ID
		if src, ok := r.Metadata[KeySource]; ok {
			label = fmt.Sprint(src)
		}
		fmt.Fprintf(&b, "%d. [%s] (score: %.2f)\n%s\n\n", i+1, label, r.Similarity, r.Content)
	}
	return b.String()
}
