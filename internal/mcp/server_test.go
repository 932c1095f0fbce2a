package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/access"
	"github.com/fyrsmithlabs/corpusd/internal/chunker"
	"github.com/fyrsmithlabs/corpusd/internal/document"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/orchestrator"
	"github.com/fyrsmithlabs/corpusd/internal/processor"
	"github.com/fyrsmithlabs/corpusd/internal/queue"
	"github.com/fyrsmithlabs/corpusd/internal/scanner"
	"github.com/fyrsmithlabs/corpusd/internal/search"
	"github.com/fyrsmithlabs/corpusd/internal/source"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
	"github.com/fyrsmithlabs/corpusd/internal/watermark"
)

func newTestDeps(t *testing.T) (*search.Engine, *orchestrator.SyncService) {
	t.Helper()
	marks, err := watermark.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { marks.Close() })

	reg := source.NewRegistry(map[document.Type]source.Client{
		document.TypeNote: source.NewFakeClient(),
	})
	store := vectorstore.NewMemoryGateway()
	logger := logging.NewTestLogger().Logger
	embed := embeddings.NewFakeProvider(8)
	enc := embeddings.NewSparseEncoder(embeddings.SparseEncoderConfig{})

	verifier := access.NewVerifier(reg, access.Config{TTL: time.Minute}, logger)
	engine := search.NewEngine(store, embed, enc, verifier, search.Config{}, logger)

	chunks, err := chunker.New(chunker.Config{Size: 128, Overlap: 16})
	require.NoError(t, err)
	proc := processor.New(reg, marks, store, embed, enc, chunks,
		processor.Config{Workers: 1, MaxRetries: 1, RetryBackoff: time.Millisecond, RateLimitBackoff: time.Millisecond},
		logger)

	tasks := queue.New(16)
	scan := scanner.New(reg, marks, store,
		func(ctx context.Context, task document.Task) error { return tasks.Enqueue(ctx, task) },
		scanner.Config{Interval: time.Minute, StalenessCycles: 5}, logger)
	sync := orchestrator.New(orchestrator.Config{DebounceWindow: time.Millisecond},
		tasks, scan, proc, marks, logger)
	return engine, sync
}

func TestNewServer(t *testing.T) {
	engine, sync := newTestDeps(t)
	logger := logging.NewTestLogger().Logger

	srv, err := NewServer(Config{Version: "0.1.0"}, engine, sync, logger)
	require.NoError(t, err)
	assert.NotNil(t, srv)
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	engine, sync := newTestDeps(t)
	logger := logging.NewTestLogger().Logger

	_, err := NewServer(Config{}, nil, sync, logger)
	assert.Error(t, err)

	_, err = NewServer(Config{}, engine, nil, logger)
	assert.Error(t, err)
}
