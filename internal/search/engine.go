// Package search implements hybrid retrieval over the vector store: a dense
// semantic channel, a sparse keyword channel, and rank fusion between them.
// Every candidate passes a live access check before it can appear in a
// response, and filtering happens before truncation so denied hits never
// shrink the page.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/corpusd/internal/access"
	"github.com/fyrsmithlabs/corpusd/internal/document"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/metrics"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// Mode selects the retrieval channels.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeBM25     Mode = "bm25"
	ModeHybrid   Mode = "hybrid"
)

// Fusion selects how hybrid mode merges the two channels.
type Fusion string

const (
	FusionRRF  Fusion = "rrf"
	FusionDBSF Fusion = "dbsf"
)

var (
	ErrEmptyQuery   = errors.New("search: empty query")
	ErrMissingUser  = errors.New("search: missing user id")
	ErrBadMode      = errors.New("search: unknown mode")
	ErrBadFusion    = errors.New("search: unknown fusion")
	ErrBadThreshold = errors.New("search: score threshold out of range")

	// ErrAccessCheckTimeout reports that access verification did not finish
	// within its deadline. The query fails closed rather than serving
	// unverified results, and callers can tell this from an empty match.
	ErrAccessCheckTimeout = errors.New("search: access check timed out")
)

// Config tunes retrieval breadth and result shaping.
type Config struct {
	Overfetch           int
	RRFRankConst        int
	DefaultLimit        int
	MaxLimit            int
	ScoreThresholdRatio float64
	AccessCheckTimeout  time.Duration
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Overfetch == 0 {
		c.Overfetch = 3
	}
	if c.RRFRankConst == 0 {
		c.RRFRankConst = 60
	}
	if c.DefaultLimit == 0 {
		c.DefaultLimit = 10
	}
	if c.MaxLimit == 0 {
		c.MaxLimit = 100
	}
	if c.AccessCheckTimeout == 0 {
		c.AccessCheckTimeout = 2 * time.Second
	}
}

// Request is one search call.
type Request struct {
	UserID   string          `json:"user_id"`
	Query    string          `json:"query"`
	Mode     Mode            `json:"mode,omitempty"`
	Fusion   Fusion          `json:"fusion,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	DocTypes []document.Type `json:"doc_types,omitempty"`
	// ScoreThreshold drops hits scoring below this fraction of the top
	// fused score. Zero falls back to the configured default.
	ScoreThreshold float64 `json:"score_threshold,omitempty"`
	// Visualize adds 3D projection coordinates to each result.
	Visualize bool `json:"visualize,omitempty"`
}

// Result is one chunk-level hit.
type Result struct {
	DocType    document.Type `json:"doc_type"`
	DocID      string        `json:"doc_id"`
	Title      string        `json:"title,omitempty"`
	Path       string        `json:"path,omitempty"`
	Content    string        `json:"content"`
	ChunkIndex int           `json:"chunk_index"`
	Page       int           `json:"page,omitempty"`
	Score      float64       `json:"score"`
	// Coords is the 3D projection of this chunk's embedding, present only
	// when the request asked for visualization.
	Coords []float64 `json:"coords,omitempty"`
}

// Response is the result page plus the effective retrieval settings.
type Response struct {
	Results []Result `json:"results"`
	Mode    Mode     `json:"mode"`
	Fusion  Fusion   `json:"fusion,omitempty"`
	// QueryCoords is the projected query point when visualizing.
	QueryCoords []float64 `json:"query_coords,omitempty"`
}

// Engine runs searches.
type Engine struct {
	store    vectorstore.Gateway
	embedder embeddings.Provider
	sparse   *embeddings.SparseEncoder
	verifier *access.Verifier
	cfg      Config
	tracer   trace.Tracer
	logger   *logging.Logger
}

// NewEngine creates a search engine.
func NewEngine(store vectorstore.Gateway, embedder embeddings.Provider,
	sparse *embeddings.SparseEncoder, verifier *access.Verifier,
	cfg Config, logger *logging.Logger) *Engine {
	cfg.ApplyDefaults()
	return &Engine{
		store:    store,
		embedder: embedder,
		sparse:   sparse,
		verifier: verifier,
		cfg:      cfg,
		tracer:   otel.Tracer("corpusd.search"),
		logger:   logger.Named("search"),
	}
}

// Search executes one request end to end.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	if req.UserID == "" {
		return nil, ErrMissingUser
	}
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	if req.Mode == "" {
		req.Mode = ModeHybrid
	}
	if req.Mode != ModeSemantic && req.Mode != ModeBM25 && req.Mode != ModeHybrid {
		return nil, fmt.Errorf("%w: %q", ErrBadMode, req.Mode)
	}
	if req.Fusion == "" {
		req.Fusion = FusionRRF
	}
	if req.Fusion != FusionRRF && req.Fusion != FusionDBSF {
		return nil, fmt.Errorf("%w: %q", ErrBadFusion, req.Fusion)
	}
	if req.Limit <= 0 {
		req.Limit = e.cfg.DefaultLimit
	}
	if req.Limit > e.cfg.MaxLimit {
		req.Limit = e.cfg.MaxLimit
	}
	if req.ScoreThreshold < 0 || req.ScoreThreshold > 1 {
		return nil, fmt.Errorf("%w: %g", ErrBadThreshold, req.ScoreThreshold)
	}
	if req.ScoreThreshold == 0 {
		req.ScoreThreshold = e.cfg.ScoreThresholdRatio
	}

	ctx, span := e.tracer.Start(ctx, "search",
		trace.WithAttributes(
			attribute.String("search.mode", string(req.Mode)),
			attribute.Int("search.limit", req.Limit),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.SearchDuration.WithLabelValues(string(req.Mode)).Observe(time.Since(start).Seconds())
	}()

	var queryDense []float32
	if req.Mode != ModeBM25 {
		var err error
		queryDense, err = e.embedder.EmbedQuery(ctx, req.Query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
	}
	var querySparse embeddings.SparseVector
	if req.Mode != ModeSemantic {
		querySparse = e.sparse.EncodeQuery(req.Query)
	}

	// Access filtering happens before truncation, so retrieval overfetches.
	// If denials starve the page, retry once with a wider net.
	fetchLimit := req.Limit * e.cfg.Overfetch
	var granted []candidate
	for attempt := 0; attempt < 2; attempt++ {
		candidates, err := e.retrieve(ctx, req, queryDense, querySparse, fetchLimit)
		if err != nil {
			return nil, err
		}
		granted, err = e.filterAccess(ctx, req.UserID, candidates)
		if err != nil {
			return nil, err
		}
		if dropped := len(candidates) - len(granted); dropped > 0 {
			metrics.SearchResultsDropped.WithLabelValues("access_denied").Add(float64(dropped))
		}
		if len(granted) >= req.Limit || len(candidates) < fetchLimit {
			break
		}
		fetchLimit *= e.cfg.Overfetch
	}

	granted = applyThreshold(granted, req.ScoreThreshold)
	if len(granted) > req.Limit {
		granted = granted[:req.Limit]
	}

	resp := &Response{Mode: req.Mode, Results: make([]Result, 0, len(granted))}
	if req.Mode == ModeHybrid {
		resp.Fusion = req.Fusion
	}
	for _, c := range granted {
		resp.Results = append(resp.Results, Result{
			DocType:    c.point.DocType,
			DocID:      c.point.DocID,
			Title:      c.point.Title,
			Path:       c.point.Path,
			Content:    c.point.Content,
			ChunkIndex: c.point.ChunkIndex,
			Page:       c.point.Page,
			Score:      c.score,
		})
	}

	if req.Visualize && len(queryDense) > 0 {
		e.project(granted, queryDense, resp)
	}

	e.logger.Debug(ctx, "search served",
		zap.String("user", req.UserID),
		zap.String("mode", string(req.Mode)),
		zap.Int("results", len(resp.Results)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

// retrieve runs the channels for the requested mode and returns fused,
// ordered candidates. Placeholder chunks are excluded at the store.
func (e *Engine) retrieve(ctx context.Context, req Request, queryDense []float32,
	querySparse embeddings.SparseVector, fetchLimit int) ([]candidate, error) {
	filter := vectorstore.Filter{
		UserID:      req.UserID,
		DocTypes:    req.DocTypes,
		Placeholder: vectorstore.Bool(false),
	}

	var denseHits, sparseHits []vectorstore.Hit
	g, gctx := errgroup.WithContext(ctx)
	if req.Mode != ModeBM25 {
		g.Go(func() error {
			hits, err := e.store.Search(gctx, vectorstore.Query{
				Filter: filter, Dense: queryDense, Limit: fetchLimit,
			})
			if err != nil {
				return fmt.Errorf("semantic channel: %w", err)
			}
			denseHits = hits
			return nil
		})
	}
	if req.Mode != ModeSemantic {
		g.Go(func() error {
			hits, err := e.store.Search(gctx, vectorstore.Query{
				Filter: filter, Sparse: querySparse, Limit: fetchLimit,
			})
			if err != nil {
				return fmt.Errorf("keyword channel: %w", err)
			}
			sparseHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	switch req.Mode {
	case ModeSemantic:
		return normalizeByMax(denseHits), nil
	case ModeBM25:
		return normalizeByMax(sparseHits), nil
	default:
		lists := [][]vectorstore.Hit{denseHits, sparseHits}
		if req.Fusion == FusionDBSF {
			return fuseDBSF(lists), nil
		}
		return fuseRRF(lists, e.cfg.RRFRankConst), nil
	}
}

// filterAccess keeps only candidates whose documents the user can read right
// now. The check runs under its own deadline; if verification does not
// finish in time the query fails closed with a typed error instead of
// serving an unverified or silently emptied page.
func (e *Engine) filterAccess(ctx context.Context, userID string, candidates []candidate) ([]candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	actx, cancel := context.WithTimeout(ctx, e.cfg.AccessCheckTimeout)
	defer cancel()

	refs := make([]access.Ref, 0, len(candidates))
	for _, c := range candidates {
		refs = append(refs, access.Ref{DocType: c.point.DocType, DocID: c.point.DocID})
	}
	allowed, err := e.verifier.Filter(actx, userID, refs)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrAccessCheckTimeout
		}
		return nil, fmt.Errorf("access filtering: %w", err)
	}

	out := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if allowed[access.Ref{DocType: c.point.DocType, DocID: c.point.DocID}] {
			out = append(out, c)
		}
	}
	return out, nil
}

// applyThreshold drops candidates scoring below the given fraction of the
// top score.
func applyThreshold(candidates []candidate, ratio float64) []candidate {
	if ratio <= 0 || len(candidates) == 0 {
		return candidates
	}
	cut := candidates[0].score * ratio
	out := candidates[:0]
	for _, c := range candidates {
		if c.score >= cut {
			out = append(out, c)
		}
	}
	if dropped := len(candidates) - len(out); dropped > 0 {
		metrics.SearchResultsDropped.WithLabelValues("threshold").Add(float64(dropped))
	}
	return out
}
