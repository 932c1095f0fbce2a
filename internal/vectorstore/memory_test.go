package vectorstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/document"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
)

func memPoint(user, docID string, chunk int, placeholder bool, dense []float32) Point {
	key := document.Key{UserID: user, DocType: document.TypeNote, DocID: docID}
	return Point{
		ID:          document.PointID(key, chunk),
		UserID:      user,
		DocType:     document.TypeNote,
		DocID:       docID,
		Content:     "content",
		ChunkIndex:  chunk,
		TotalChunks: chunk + 1,
		Placeholder: placeholder,
		Dense:       dense,
		IndexedAt:   time.Now(),
	}
}

func TestMemoryGateway_UpsertOverwrites(t *testing.T) {
	g := NewMemoryGateway()
	ctx := t.Context()

	p := memPoint("alice", "1", 0, true, []float32{1, 0})
	require.NoError(t, g.Upsert(ctx, []Point{p}))

	p.Placeholder = false
	require.NoError(t, g.Upsert(ctx, []Point{p}))

	n, err := g.Count(ctx, Filter{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n, "same id overwrites, never duplicates")

	pts, err := g.Scroll(ctx, Filter{UserID: "alice"}, 0)
	require.NoError(t, err)
	require.Len(t, pts, 1)
	assert.False(t, pts[0].Placeholder)
}

func TestMemoryGateway_DenseSearchOrdersByCosine(t *testing.T) {
	g := NewMemoryGateway()
	ctx := t.Context()

	require.NoError(t, g.Upsert(ctx, []Point{
		memPoint("alice", "near", 0, false, []float32{1, 0}),
		memPoint("alice", "far", 0, false, []float32{0, 1}),
		memPoint("alice", "mid", 0, false, []float32{1, 1}),
	}))

	hits, err := g.Search(ctx, Query{
		Filter: Filter{UserID: "alice", Placeholder: Bool(false)},
		Dense:  []float32{1, 0},
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "near", hits[0].DocID)
	assert.Equal(t, "mid", hits[1].DocID)
	assert.Equal(t, "far", hits[2].DocID)
}

func TestMemoryGateway_SparseSearchMatchesTermsOnly(t *testing.T) {
	g := NewMemoryGateway()
	ctx := t.Context()
	enc := embeddings.NewSparseEncoder(embeddings.SparseEncoderConfig{})

	withSparse := memPoint("alice", "kw", 0, false, []float32{1, 0})
	withSparse.Sparse = enc.EncodeDocument("kubernetes deployment guide")
	other := memPoint("alice", "other", 0, false, []float32{0, 1})
	other.Sparse = enc.EncodeDocument("holiday photos album")
	require.NoError(t, g.Upsert(ctx, []Point{withSparse, other}))

	hits, err := g.Search(ctx, Query{
		Filter: Filter{UserID: "alice"},
		Sparse: enc.EncodeQuery("kubernetes"),
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "kw", hits[0].DocID)
}

func TestMemoryGateway_FilterIsolation(t *testing.T) {
	g := NewMemoryGateway()
	ctx := t.Context()

	require.NoError(t, g.Upsert(ctx, []Point{
		memPoint("alice", "1", 0, false, []float32{1, 0}),
		memPoint("bob", "1", 0, false, []float32{1, 0}),
	}))

	hits, err := g.Search(ctx, Query{
		Filter: Filter{UserID: "alice"},
		Dense:  []float32{1, 0},
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "alice", hits[0].UserID, "one user never sees another's points")
}

func TestMemoryGateway_DeleteByFilterPath(t *testing.T) {
	g := NewMemoryGateway()
	ctx := t.Context()

	p := memPoint("alice", "x", 0, false, []float32{1, 0})
	p.Path = "/files/doomed.md"
	require.NoError(t, g.Upsert(ctx, []Point{p, memPoint("alice", "y", 0, false, []float32{1, 0})}))

	require.NoError(t, g.DeleteByFilter(ctx, Filter{UserID: "alice", Path: "/files/doomed.md"}))

	n, err := g.Count(ctx, Filter{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestMemoryGateway_StalePlaceholderFilter(t *testing.T) {
	g := NewMemoryGateway()
	ctx := t.Context()

	stale := memPoint("alice", "old", 0, true, []float32{1, 0})
	stale.IndexedAt = time.Now().Add(-time.Hour)
	fresh := memPoint("alice", "new", 0, true, []float32{1, 0})
	require.NoError(t, g.Upsert(ctx, []Point{stale, fresh}))

	pts, err := g.Scroll(ctx, Filter{
		UserID:        "alice",
		Placeholder:   Bool(true),
		IndexedBefore: time.Now().Add(-30 * time.Minute),
	}, 0)
	require.NoError(t, err)
	require.Len(t, pts, 1)
	assert.Equal(t, "old", pts[0].DocID)
}

func TestMemoryGateway_FailSearchDegradesToError(t *testing.T) {
	g := NewMemoryGateway()
	g.FailSearch = true

	_, err := g.Search(t.Context(), Query{Filter: Filter{UserID: "alice"}, Dense: []float32{1}, Limit: 1})
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestQdrantConfig_Validate(t *testing.T) {
	cfg := QdrantConfig{}
	cfg.ApplyDefaults()
	cfg.Collection = "corpus_bge_small_384"
	cfg.VectorSize = 384
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Collection = "Not-Valid!"
	require.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = cfg
	bad.VectorSize = 0
	require.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}
