// Package access verifies live read permissions at query time. Index-time
// permission state is only a hint; the verifier asks the owning source
// application before any chunk reaches a search response. Decisions are
// cached briefly, and errors fail closed.
package access

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/fyrsmithlabs/corpusd/internal/document"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/metrics"
	"github.com/fyrsmithlabs/corpusd/internal/source"
)

// Ref identifies one document within a user's corpus.
type Ref struct {
	DocType document.Type
	DocID   string
}

// Config tunes caching and concurrency.
type Config struct {
	// TTL bounds how stale a cached access decision may be.
	TTL time.Duration
	// CacheSize caps cached decisions across all users.
	CacheSize int
	// BatchSize caps concurrent checks against one source per Filter call.
	BatchSize int
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.TTL == 0 {
		c.TTL = 15 * time.Second
	}
	if c.CacheSize == 0 {
		c.CacheSize = 4096
	}
	if c.BatchSize == 0 {
		c.BatchSize = 64
	}
}

// Verifier answers "may this user read this document right now".
type Verifier struct {
	sources *source.Registry
	cache   *lru.LRU[string, bool]
	group   singleflight.Group
	cfg     Config
	logger  *logging.Logger
}

// NewVerifier creates a verifier over the source registry.
func NewVerifier(sources *source.Registry, cfg Config, logger *logging.Logger) *Verifier {
	cfg.ApplyDefaults()
	return &Verifier{
		sources: sources,
		cache:   lru.NewLRU[string, bool](cfg.CacheSize, nil, cfg.TTL),
		cfg:     cfg,
		logger:  logger.Named("access"),
	}
}

// Check verifies one document. Cached decisions are reused within the TTL;
// concurrent checks for the same document share one upstream call. Any
// failure to verify denies access.
func (v *Verifier) Check(ctx context.Context, userID string, ref Ref) bool {
	key := cacheKey(userID, ref)
	if allowed, ok := v.cache.Get(key); ok {
		metrics.AccessCacheHits.WithLabelValues("hit").Inc()
		return allowed
	}
	metrics.AccessCacheHits.WithLabelValues("miss").Inc()

	result, err, _ := v.group.Do(key, func() (any, error) {
		client, ok := v.sources.Client(ref.DocType)
		if !ok {
			return false, fmt.Errorf("no source client for %s", ref.DocType)
		}
		allowed, err := client.CheckAccess(ctx, userID, ref.DocType, ref.DocID)
		if err != nil {
			return false, err
		}
		v.cache.Add(key, allowed)
		return allowed, nil
	})
	if err != nil {
		// Fail closed: an unverifiable document never reaches results.
		v.logger.Warn(ctx, "access check failed, denying",
			zap.String("user", userID),
			zap.String("doc_type", string(ref.DocType)),
			zap.String("doc_id", ref.DocID),
			zap.Error(err),
		)
		return false
	}
	return result.(bool)
}

// Filter checks many documents with bounded concurrency and returns the
// allowed subset as a set. Individual check failures deny that document only;
// an expired or cancelled ctx aborts the whole batch and returns the context
// error, so callers can fail the surrounding query closed.
func (v *Verifier) Filter(ctx context.Context, userID string, refs []Ref) (map[Ref]bool, error) {
	allowed := make(map[Ref]bool, len(refs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.cfg.BatchSize)
	seen := make(map[Ref]bool, len(refs))
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		g.Go(func() error {
			// A backend that ignores cancellation must not hold the batch
			// past the deadline; its late answer is discarded.
			done := make(chan bool, 1)
			go func() { done <- v.Check(gctx, userID, ref) }()
			select {
			case ok := <-done:
				if ok {
					mu.Lock()
					allowed[ref] = true
					mu.Unlock()
				}
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return allowed, err
	}
	return allowed, nil
}

// Invalidate drops the cached decision for one document.
func (v *Verifier) Invalidate(userID string, ref Ref) {
	v.cache.Remove(cacheKey(userID, ref))
}

func cacheKey(userID string, ref Ref) string {
	return userID + "|" + string(ref.DocType) + "|" + ref.DocID
}
