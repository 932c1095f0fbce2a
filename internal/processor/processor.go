// Package processor executes document tasks: fetch, extract, chunk, embed,
// and write to the vector store. Indexing is two-phase: chunks land first as
// placeholders carrying payload only, then the same point IDs are finalized
// with vectors. A crash between the phases leaves placeholders that the
// scanner's staleness cleanup removes later.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/chunker"
	"github.com/fyrsmithlabs/corpusd/internal/document"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/extract"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/metrics"
	"github.com/fyrsmithlabs/corpusd/internal/source"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
	"github.com/fyrsmithlabs/corpusd/internal/watermark"
)

// Config tunes the worker pool and retry behavior.
type Config struct {
	Workers int
	// MaxRetries bounds attempts per task before it is dropped as failed.
	MaxRetries int
	// RetryBackoff is the base delay between attempts, doubled each retry.
	RetryBackoff time.Duration
	// RateLimitBackoff is the longer delay used when the embedding provider
	// reports rate limiting.
	RateLimitBackoff time.Duration
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.RateLimitBackoff == 0 {
		c.RateLimitBackoff = 10 * time.Second
	}
}

// Processor turns document tasks into vector store state.
type Processor struct {
	sources  *source.Registry
	marks    *watermark.Store
	store    vectorstore.Gateway
	embedder embeddings.Provider
	sparse   *embeddings.SparseEncoder
	chunks   *chunker.Chunker
	cfg      Config
	logger   *logging.Logger
}

// New creates a processor.
func New(sources *source.Registry, marks *watermark.Store, store vectorstore.Gateway,
	embedder embeddings.Provider, sparse *embeddings.SparseEncoder, chunks *chunker.Chunker,
	cfg Config, logger *logging.Logger) *Processor {
	cfg.ApplyDefaults()
	return &Processor{
		sources:  sources,
		marks:    marks,
		store:    store,
		embedder: embedder,
		sparse:   sparse,
		chunks:   chunks,
		cfg:      cfg,
		logger:   logger.Named("processor"),
	}
}

// Process executes one task to completion. Deletion tasks remove chunks and
// the watermark; indexing tasks run the full fetch-to-finalize pipeline.
func (p *Processor) Process(ctx context.Context, task document.Task) error {
	key := task.Key()
	if task.Op == document.OpDelete {
		if err := p.deleteDocument(ctx, key, task.SourceHint); err != nil {
			return err
		}
		metrics.RecordProcessed(string(task.DocType), "deleted")
		return nil
	}

	client, ok := p.sources.Client(task.DocType)
	if !ok {
		return fmt.Errorf("no source client for %s", task.DocType)
	}

	content, err := client.FetchContent(ctx, task.UserID, task.DocType, task.DocID)
	if errors.Is(err, source.ErrNotFound) {
		// Listed a moment ago, gone now. Treat as a deletion.
		if err := p.deleteDocument(ctx, key, task.SourceHint); err != nil {
			return err
		}
		metrics.RecordProcessed(string(task.DocType), "deleted")
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch %s: %w", key, err)
	}

	extracted, err := extract.Extract(content.Data, content.MimeType)
	if err != nil {
		// Corrupt or unsupported content will not improve on retry, but the
		// previously indexed revision stays searchable and the watermark
		// stays put, so the next scan re-emits the document.
		p.logger.Warn(ctx, "extraction failed, document skipped",
			zap.String("doc", key.String()), zap.Error(err))
		metrics.RecordProcessed(string(task.DocType), "failed")
		return nil
	}

	pieces := p.chunks.Split(extracted.Text)
	if len(pieces) == 0 {
		// Empty document: nothing searchable remains.
		if err := p.store.DeleteByFilter(ctx, documentFilter(key)); err != nil {
			return err
		}
		if err := p.marks.Upsert(ctx, key, task.ModifiedAt); err != nil {
			return err
		}
		metrics.RecordProcessed(string(task.DocType), "skipped")
		return nil
	}

	points := p.buildPoints(key, task, content, extracted, pieces)

	// Phase one: payload-only placeholders. Readers filter these out, but the
	// document's presence is durable before the slow embedding step.
	if err := p.store.Upsert(ctx, points); err != nil {
		return fmt.Errorf("placeholder upsert for %s: %w", key, err)
	}

	texts := make([]string, len(pieces))
	for i, c := range pieces {
		texts[i] = c.Text
	}
	embedStart := time.Now()
	dense, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %s: %w", key, err)
	}
	metrics.EmbedDuration.Observe(time.Since(embedStart).Seconds())
	if len(dense) != len(pieces) {
		return fmt.Errorf("embed %s: got %d vectors for %d chunks", key, len(dense), len(pieces))
	}

	// Phase two: finalize the same IDs with vectors. The overwrite flips
	// is_placeholder atomically per point.
	now := time.Now().UTC()
	for i := range points {
		points[i].Dense = dense[i]
		points[i].Sparse = p.sparse.EncodeDocument(pieces[i].Text)
		points[i].Placeholder = false
		points[i].IndexedAt = now
	}
	if err := p.store.Upsert(ctx, points); err != nil {
		return fmt.Errorf("finalize upsert for %s: %w", key, err)
	}

	// A shrinking document leaves tail chunks from the previous version.
	shrink := documentFilter(key)
	shrink.MinChunkIndex = vectorstore.Int(len(pieces))
	if err := p.store.DeleteByFilter(ctx, shrink); err != nil {
		return fmt.Errorf("trim stale chunks for %s: %w", key, err)
	}

	// The watermark advances last: every earlier failure leaves the document
	// eligible for a rescan.
	if err := p.marks.Upsert(ctx, key, task.ModifiedAt); err != nil {
		return fmt.Errorf("advance watermark for %s: %w", key, err)
	}

	metrics.RecordProcessed(string(task.DocType), "indexed")
	p.logger.Info(ctx, "document indexed",
		zap.String("doc", key.String()),
		zap.Int("chunks", len(pieces)),
	)
	return nil
}

func (p *Processor) buildPoints(key document.Key, task document.Task, content *source.Content,
	extracted *extract.Result, pieces []chunker.Chunk) []vectorstore.Point {
	now := time.Now().UTC()
	points := make([]vectorstore.Point, len(pieces))
	path := content.Path
	if path == "" {
		path = task.SourceHint
	}
	for i, c := range pieces {
		points[i] = vectorstore.Point{
			ID:          document.PointID(key, c.Index),
			UserID:      key.UserID,
			DocType:     key.DocType,
			DocID:       key.DocID,
			Title:       content.Title,
			Path:        path,
			Content:     c.Text,
			ChunkIndex:  c.Index,
			TotalChunks: len(pieces),
			StartOffset: c.Start,
			EndOffset:   c.End,
			Page:        extracted.PageFor(c.Start),
			Placeholder: true,
			IndexedAt:   now,
		}
	}
	return points
}

// deleteDocument removes all chunks and the watermark for one document. When
// only a path is known (file deletions reported without an ID), the path
// filter catches chunks indexed under a different ID for the same file.
func (p *Processor) deleteDocument(ctx context.Context, key document.Key, path string) error {
	if err := p.store.DeleteByFilter(ctx, documentFilter(key)); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", key, err)
	}
	if path != "" {
		f := vectorstore.Filter{UserID: key.UserID, DocType: key.DocType, Path: path}
		if err := p.store.DeleteByFilter(ctx, f); err != nil {
			return fmt.Errorf("delete chunks by path for %s: %w", key, err)
		}
	}
	if err := p.marks.Delete(ctx, key); err != nil {
		return fmt.Errorf("drop watermark for %s: %w", key, err)
	}
	p.logger.Info(ctx, "document removed", zap.String("doc", key.String()))
	return nil
}

func documentFilter(key document.Key) vectorstore.Filter {
	return vectorstore.Filter{UserID: key.UserID, DocType: key.DocType, DocID: key.DocID}
}
