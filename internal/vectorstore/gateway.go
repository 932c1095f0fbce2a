// Package vectorstore provides the narrow gateway over the vector index:
// upsert, delete by id or filter, dense and sparse search, and point scroll.
// All mutation is point-id-scoped, which the store handles atomically per
// point, so callers need no locking around the gateway.
package vectorstore

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/corpusd/internal/document"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
)

// Sentinel errors for gateway operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrStoreUnavailable indicates a read or write failed after retries.
	// A search hitting it degrades to an error response, never to
	// silently-empty results.
	ErrStoreUnavailable = errors.New("vector store unavailable")
)

// Point is one embedded window of a document as stored in the index.
type Point struct {
	// ID is the deterministic point id (document.PointID).
	ID string

	Dense  []float32
	Sparse embeddings.SparseVector

	UserID  string
	DocType document.Type
	DocID   string

	Title string
	Path  string
	// Content is the chunk text, stored so context expansion and chunk
	// lookups need no re-extraction.
	Content string

	ChunkIndex  int
	TotalChunks int
	StartOffset int
	EndOffset   int
	// Page is the 1-based page for paginated formats, 0 otherwise.
	Page int

	// Placeholder marks a point written before its vectors were computed.
	Placeholder bool
	// IndexedAt is when the point was written; drives staleness cleanup.
	IndexedAt time.Time
}

// Key returns the document identity of the point.
func (p Point) Key() document.Key {
	return document.Key{UserID: p.UserID, DocType: p.DocType, DocID: p.DocID}
}

// Hit is one scored search result.
type Hit struct {
	Point
	Score float32
}

// Filter selects points by payload. Set fields are ANDed; zero values are
// ignored.
type Filter struct {
	UserID   string
	DocType  document.Type
	DocTypes []document.Type
	DocID    string
	Path     string

	// Placeholder, when non-nil, selects only placeholder (true) or only
	// finalized (false) points.
	Placeholder *bool

	// IndexedBefore, when non-zero, selects points written before the
	// given instant. Combined with Placeholder=true it finds abandoned
	// placeholders.
	IndexedBefore time.Time

	// MinChunkIndex, when non-nil, selects points with chunk_index >= the
	// value. Used for shrinkage cleanup after a re-index.
	MinChunkIndex *int
}

// Bool returns a pointer for Filter.Placeholder literals.
func Bool(v bool) *bool { return &v }

// Int returns a pointer for Filter.MinChunkIndex literals.
func Int(v int) *int { return &v }

// Query is one retrieval request against a single channel.
type Query struct {
	// Filter restricts candidates; the engine always sets Placeholder=false.
	Filter Filter
	Limit  int

	// Exactly one of Dense / Sparse is set, selecting the channel.
	Dense  []float32
	Sparse embeddings.SparseVector
}

// Gateway is the narrow interface over the vector index.
type Gateway interface {
	// EnsureReady creates the collection and payload indexes if missing.
	EnsureReady(ctx context.Context) error

	// Upsert writes points, overwriting any existing point with the same id.
	Upsert(ctx context.Context, points []Point) error

	// DeleteByIDs removes points by id. Unknown ids are ignored.
	DeleteByIDs(ctx context.Context, ids []string) error

	// DeleteByFilter removes every point matching the filter.
	DeleteByFilter(ctx context.Context, f Filter) error

	// Search runs one retrieval channel and returns hits ordered by score
	// descending, with payload and vectors populated.
	Search(ctx context.Context, q Query) ([]Hit, error)

	// Get fetches points by id. Missing ids are simply absent from the
	// result.
	Get(ctx context.Context, ids []string) ([]Point, error)

	// Scroll lists points matching the filter, up to limit (0 = no limit).
	// Order is unspecified.
	Scroll(ctx context.Context, f Filter, limit int) ([]Point, error)

	// Count returns the number of points matching the filter.
	Count(ctx context.Context, f Filter) (uint64, error)

	// Close releases the underlying connection.
	Close() error
}
