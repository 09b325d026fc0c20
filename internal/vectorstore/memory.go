package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/nidhogg/modelhub/internal/embedding"
	"go.uber.org/zap"
)

// MemoryIndex holds every document in memory and rewrites a full snapshot
// through its Snapshotter after each mutation. In-memory state changes only
// once the snapshot write has succeeded.
type MemoryIndex struct {
	mu       sync.RWMutex
	docs     map[string]*Record
	order    []string
	embedder embedding.Provider
	store    Snapshotter
	logger   *zap.Logger
}

// NewMemoryIndex loads the current snapshot from store. Records whose vector
// length differs from the embedder's dimension are re-embedded from content.
func NewMemoryIndex(ctx context.Context, embedder embedding.Provider, store Snapshotter, logger *zap.Logger) (*MemoryIndex, error) {
	idx := &MemoryIndex{
		docs:     make(map[string]*Record),
		embedder: embedder,
		store:    store,
		logger:   logger,
	}

	records, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}

	var stale []*Record
	for i := range records {
		rec := records[i]
		if rec.ID == "" {
			rec.ID = DocumentID(rec.Content)
		}
		if rec.Metadata == nil {
			rec.Metadata = map[string]any{}
		}
		if _, ok := idx.docs[rec.ID]; !ok {
			idx.order = append(idx.order, rec.ID)
		}
		idx.docs[rec.ID] = &rec
		if dim := embedder.Dimension(); dim > 0 && len(rec.Embedding) != dim {
			stale = append(stale, &rec)
		}
	}

	if len(stale) > 0 {
		texts := make([]string, len(stale))
		for i, rec := range stale {
			texts[i] = rec.Content
		}
		vecs, err := embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("re-embed %d records: %w", len(stale), err)
		}
		for i, rec := range stale {
			rec.Embedding = vecs[i]
		}
		logger.Info("re-embedded records with mismatched dimension",
			zap.Int("count", len(stale)), zap.Int("dimension", embedder.Dimension()))
	}

	logger.Info("vector index loaded",
		zap.Int("documents", len(idx.order)),
		zap.String("location", store.Location()))
	return idx, nil
}

// Insert embeds content and stores it under its content-derived ID.
func (m *MemoryIndex) Insert(ctx context.Context, content string, metadata map[string]any) (string, error) {
	ids, err := m.InsertMany(ctx, []Entry{{Content: content, Metadata: metadata}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// InsertMany embeds all entries, then stores them with a single snapshot write.
func (m *MemoryIndex) InsertMany(ctx context.Context, entries []Entry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Content
	}
	vecs, err := m.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(entries) {
		return nil, fmt.Errorf("embed documents: got %d vectors for %d texts", len(vecs), len(entries))
	}

	ids := make([]string, len(entries))
	incoming := make(map[string]*Record, len(entries))
	var added []string
	for i, e := range entries {
		id := DocumentID(e.Content)
		ids[i] = id
		if _, seen := incoming[id]; !seen {
			added = append(added, id)
		}
		incoming[id] = &Record{
			ID:        id,
			Content:   e.Content,
			Metadata:  cloneMetadata(e.Metadata),
			Embedding: vecs[i],
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	order := m.order
	for _, id := range added {
		if _, ok := m.docs[id]; !ok {
			order = append(order, id)
		}
	}
	lookup := func(id string) *Record {
		if rec, ok := incoming[id]; ok {
			return rec
		}
		return m.docs[id]
	}
	if err := m.save(ctx, order, lookup); err != nil {
		return nil, err
	}

	for id, rec := range incoming {
		m.docs[id] = rec
	}
	m.order = order
	return ids, nil
}

// Search ranks every stored document by cosine similarity to query. Ties
// keep insertion order. An empty index yields no results.
func (m *MemoryIndex) Search(ctx context.Context, query string, k int, minSimilarity float64) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}
	m.mu.RLock()
	empty := len(m.order) == 0
	m.mu.RUnlock()
	if empty {
		return []Result{}, nil
	}

	qvec, err := embedding.EmbedOne(ctx, m.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Result, 0, len(m.order))
	for _, id := range m.order {
		rec := m.docs[id]
		sim := Cosine(qvec, rec.Embedding)
		if sim < minSimilarity {
			continue
		}
		results = append(results, Result{
			ID:         rec.ID,
			Content:    rec.Content,
			Metadata:   cloneMetadata(rec.Metadata),
			Similarity: sim,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete removes one document by ID.
func (m *MemoryIndex) Delete(ctx context.Context, id string) (bool, error) {
	n, err := m.remove(ctx, func(rec *Record) bool { return rec.ID == id })
	return n > 0, err
}

// DeleteWhere removes every document whose metadata[key] equals value.
func (m *MemoryIndex) DeleteWhere(ctx context.Context, key string, value any) (int, error) {
	return m.remove(ctx, func(rec *Record) bool {
		v, ok := rec.Metadata[key]
		return ok && metadataEqual(v, value)
	})
}

func (m *MemoryIndex) remove(ctx context.Context, match func(*Record) bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make([]string, 0, len(m.order))
	var removed []string
	for _, id := range m.order {
		if match(m.docs[id]) {
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	if len(removed) == 0 {
		return 0, nil
	}

	if err := m.save(ctx, kept, func(id string) *Record { return m.docs[id] }); err != nil {
		return 0, err
	}
	for _, id := range removed {
		delete(m.docs, id)
	}
	m.order = kept
	return len(removed), nil
}

// Clear removes every document.
func (m *MemoryIndex) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Save(ctx, []Record{}); err != nil {
		return err
	}
	m.docs = make(map[string]*Record)
	m.order = nil
	return nil
}

// Stats reports the document count and where the snapshot lives.
func (m *MemoryIndex) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Count:     len(m.order),
		Location:  m.store.Location(),
		Embedder:  m.embedder.Name(),
		Dimension: m.embedder.Dimension(),
	}, nil
}

// save writes the snapshot described by order. Callers hold the write lock.
func (m *MemoryIndex) save(ctx context.Context, order []string, lookup func(string) *Record) error {
	records := make([]Record, 0, len(order))
	for _, id := range order {
		records = append(records, *lookup(id))
	}
	if err := m.store.Save(ctx, records); err != nil {
		return err
	}
	m.logger.Debug("snapshot saved",
		zap.Int("documents", len(records)),
		zap.String("location", m.store.Location()))
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either has zero
// norm or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
