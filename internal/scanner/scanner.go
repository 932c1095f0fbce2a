// Package scanner discovers work by diffing source listings against sync
// watermarks. It is the safety net behind event intake: anything an event
// missed gets caught on the next periodic scan.
package scanner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/document"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/metrics"
	"github.com/fyrsmithlabs/corpusd/internal/source"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
	"github.com/fyrsmithlabs/corpusd/internal/watermark"
)

// Config tunes scan frequency and staleness cleanup.
type Config struct {
	// Interval between periodic scans per user.
	Interval time.Duration
	// StalenessCycles is how many intervals a placeholder may stay
	// unfinalized before cleanup removes it.
	StalenessCycles int
}

// Result summarizes one scan.
type Result struct {
	// Queued counts index tasks enqueued.
	Queued int `json:"queued"`
	// Deletes counts delete tasks enqueued.
	Deletes int `json:"deletes"`
	// StaleRemoved counts abandoned placeholder chunks removed.
	StaleRemoved int `json:"stale_removed"`
	// ListErrors counts document types whose listing failed.
	ListErrors int `json:"list_errors"`
}

// Scanner diffs source listings against watermarks and enqueues tasks.
type Scanner struct {
	sources *source.Registry
	marks   *watermark.Store
	store   vectorstore.Gateway
	enqueue func(context.Context, document.Task) error
	cfg     Config
	logger  *logging.Logger
}

// New creates a scanner. The enqueue callback feeds the processing queue and
// may block for backpressure.
func New(sources *source.Registry, marks *watermark.Store, store vectorstore.Gateway,
	enqueue func(context.Context, document.Task) error, cfg Config, logger *logging.Logger) *Scanner {
	return &Scanner{
		sources: sources,
		marks:   marks,
		store:   store,
		enqueue: enqueue,
		cfg:     cfg,
		logger:  logger.Named("scanner"),
	}
}

// Scan walks every enabled document type for one user. A failing source
// listing skips that type rather than aborting the scan; its documents keep
// their watermarks and are retried next cycle.
func (s *Scanner) Scan(ctx context.Context, userID string) (Result, error) {
	start := time.Now()
	var res Result

	for _, docType := range s.sources.EnabledTypes() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.scanType(ctx, userID, docType, &res); err != nil {
			res.ListErrors++
			s.logger.Warn(ctx, "listing failed, type skipped this cycle",
				zap.String("user", userID),
				zap.String("doc_type", string(docType)),
				zap.Error(err),
			)
		}
	}

	removed, err := s.cleanupStale(ctx, userID)
	if err != nil {
		s.logger.Warn(ctx, "stale placeholder cleanup failed",
			zap.String("user", userID), zap.Error(err))
	}
	res.StaleRemoved = removed

	metrics.ScanDuration.Observe(time.Since(start).Seconds())
	s.logger.Info(ctx, "scan complete",
		zap.String("user", userID),
		zap.Int("queued", res.Queued),
		zap.Int("deletes", res.Deletes),
		zap.Int("stale_removed", res.StaleRemoved),
		zap.Int("list_errors", res.ListErrors),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (s *Scanner) scanType(ctx context.Context, userID string, docType document.Type, res *Result) error {
	client, ok := s.sources.Client(docType)
	if !ok {
		return fmt.Errorf("no client registered for %s", docType)
	}
	listings, err := client.ListDocuments(ctx, userID, docType)
	if err != nil {
		return fmt.Errorf("list %s: %w", docType, err)
	}
	marks, err := s.marks.ListByUserType(ctx, userID, docType)
	if err != nil {
		return fmt.Errorf("load watermarks for %s: %w", docType, err)
	}

	seen := make(map[string]bool, len(listings))
	for _, l := range listings {
		seen[l.DocID] = true
		wm, ok := marks[l.DocID]
		if ok && !l.ModifiedAt.After(wm) {
			continue // already indexed at this version
		}
		task := document.Task{
			UserID:     userID,
			DocType:    docType,
			DocID:      l.DocID,
			Op:         document.OpIndex,
			ModifiedAt: l.ModifiedAt,
			SourceHint: l.Path,
		}
		if err := s.enqueue(ctx, task); err != nil {
			return fmt.Errorf("enqueue index task: %w", err)
		}
		res.Queued++
	}

	// Watermarked documents that vanished from the listing were deleted at
	// the source.
	for docID := range marks {
		if seen[docID] {
			continue
		}
		task := document.Task{
			UserID:     userID,
			DocType:    docType,
			DocID:      docID,
			Op:         document.OpDelete,
			ModifiedAt: time.Now().UTC(),
		}
		if err := s.enqueue(ctx, task); err != nil {
			return fmt.Errorf("enqueue delete task: %w", err)
		}
		res.Deletes++
	}
	return nil
}

// cleanupStale removes placeholder chunks that never got finalized. A
// placeholder older than StalenessCycles scan intervals whose document has
// no watermark belongs to a write that crashed between the two phases; a
// watermarked document keeps its placeholders because a finalize pass for a
// newer revision may still be in flight.
func (s *Scanner) cleanupStale(ctx context.Context, userID string) (int, error) {
	if s.cfg.StalenessCycles <= 0 || s.cfg.Interval <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-time.Duration(s.cfg.StalenessCycles) * s.cfg.Interval)
	filter := vectorstore.Filter{
		UserID:        userID,
		Placeholder:   vectorstore.Bool(true),
		IndexedBefore: cutoff,
	}
	stale, err := s.store.Scroll(ctx, filter, 0)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	watermarked := make(map[document.Key]bool)
	var ids []string
	for _, p := range stale {
		key := p.Key()
		marked, checked := watermarked[key]
		if !checked {
			_, marked, err = s.marks.Get(ctx, key)
			if err != nil {
				return 0, err
			}
			watermarked[key] = marked
		}
		if !marked {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.store.DeleteByIDs(ctx, ids); err != nil {
		return 0, err
	}
	metrics.StalePlaceholdersRemoved.Add(float64(len(ids)))
	return len(ids), nil
}
