package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryGateway is an in-memory Gateway. It backs unit tests across the
// repository and doubles as an embedded store for development without a
// Qdrant instance. Dense scoring is cosine similarity; sparse scoring is the
// dot product of matching term weights.
type MemoryGateway struct {
	mu     sync.RWMutex
	points map[string]Point

	// FailSearch, when set, makes Search return ErrStoreUnavailable. Tests
	// use it to assert that a degraded store yields an error, not empty
	// results.
	FailSearch bool
}

// NewMemoryGateway creates an empty in-memory gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{points: make(map[string]Point)}
}

func (m *MemoryGateway) EnsureReady(ctx context.Context) error { return nil }

func (m *MemoryGateway) Upsert(ctx context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.ID] = p
	}
	return nil
}

func (m *MemoryGateway) DeleteByIDs(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.points, id)
	}
	return nil
}

func (m *MemoryGateway) DeleteByFilter(ctx context.Context, f Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if matchFilter(p, f) {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *MemoryGateway) Search(ctx context.Context, q Query) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailSearch {
		return nil, ErrStoreUnavailable
	}

	var hits []Hit
	for _, p := range m.points {
		if !matchFilter(p, q.Filter) {
			continue
		}
		var score float32
		switch {
		case len(q.Dense) > 0:
			score = cosine(q.Dense, p.Dense)
		case !q.Sparse.Empty():
			score = sparseDot(q, p)
			if score == 0 {
				continue // keyword channel returns only matching points
			}
		default:
			continue
		}
		hits = append(hits, Hit{Point: p, Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

func (m *MemoryGateway) Get(ctx context.Context, ids []string) ([]Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Point
	for _, id := range ids {
		if p, ok := m.points[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryGateway) Scroll(ctx context.Context, f Filter, limit int) ([]Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Point
	for _, p := range m.points {
		if matchFilter(p, f) {
			out = append(out, p)
		}
	}
	// Deterministic order keeps tests stable.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryGateway) Count(ctx context.Context, f Filter) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n uint64
	for _, p := range m.points {
		if matchFilter(p, f) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryGateway) Close() error { return nil }

func matchFilter(p Point, f Filter) bool {
	if f.UserID != "" && p.UserID != f.UserID {
		return false
	}
	if f.DocType != "" && p.DocType != f.DocType {
		return false
	}
	if len(f.DocTypes) > 0 {
		found := false
		for _, t := range f.DocTypes {
			if p.DocType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.DocID != "" && p.DocID != f.DocID {
		return false
	}
	if f.Path != "" && p.Path != f.Path {
		return false
	}
	if f.Placeholder != nil && p.Placeholder != *f.Placeholder {
		return false
	}
	if !f.IndexedBefore.IsZero() && !p.IndexedAt.Before(f.IndexedBefore) {
		return false
	}
	if f.MinChunkIndex != nil && p.ChunkIndex < *f.MinChunkIndex {
		return false
	}
	return true
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func sparseDot(q Query, p Point) float32 {
	weights := make(map[uint32]float32, len(p.Sparse.Indices))
	for i, idx := range p.Sparse.Indices {
		weights[idx] = p.Sparse.Values[i]
	}
	var sum float32
	for i, idx := range q.Sparse.Indices {
		if w, ok := weights[idx]; ok {
			sum += w * q.Sparse.Values[i]
		}
	}
	return sum
}

var _ Gateway = (*MemoryGateway)(nil)
