package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/chunker"
	"github.com/fyrsmithlabs/corpusd/internal/document"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/intake"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/processor"
	"github.com/fyrsmithlabs/corpusd/internal/queue"
	"github.com/fyrsmithlabs/corpusd/internal/scanner"
	"github.com/fyrsmithlabs/corpusd/internal/source"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
	"github.com/fyrsmithlabs/corpusd/internal/watermark"
)

type fixture struct {
	svc   *SyncService
	notes *source.FakeClient
	store *vectorstore.MemoryGateway
	marks *watermark.Store
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	marks, err := watermark.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { marks.Close() })

	notes := source.NewFakeClient()
	reg := source.NewRegistry(map[document.Type]source.Client{
		document.TypeNote: notes,
	})
	store := vectorstore.NewMemoryGateway()
	logger := logging.NewTestLogger().Logger

	chunks, err := chunker.New(chunker.Config{Size: 128, Overlap: 16})
	require.NoError(t, err)
	proc := processor.New(reg, marks, store, embeddings.NewFakeProvider(8),
		embeddings.NewSparseEncoder(embeddings.SparseEncoderConfig{}), chunks,
		processor.Config{Workers: 2, MaxRetries: 2, RetryBackoff: time.Millisecond, RateLimitBackoff: time.Millisecond},
		logger)

	if cfg.DebounceWindow == 0 {
		cfg.DebounceWindow = 10 * time.Millisecond
	}
	tasks := queue.New(64)
	scan := scanner.New(reg, marks, store,
		func(ctx context.Context, task document.Task) error { return tasks.Enqueue(ctx, task) },
		scanner.Config{Interval: time.Minute, StalenessCycles: 5}, logger)
	svc := New(cfg, tasks, scan, proc, marks, logger)

	f := &fixture{svc: svc, notes: notes, store: store, marks: marks}
	svc.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return f
}

func TestSyncService_EventToIndex(t *testing.T) {
	f := newFixture(t, Config{})
	f.notes.Put("alice",
		source.Listing{DocID: "n1", ModifiedAt: time.Now()},
		&source.Content{Data: []byte("note body for indexing"), MimeType: "text/plain"})

	require.NoError(t, f.svc.SubmitEvent(t.Context(), intake.Event{
		UserID: "alice", DocType: document.TypeNote, DocID: "n1", ModifiedAt: time.Now(),
	}))

	require.Eventually(t, func() bool {
		n, err := f.store.Count(context.Background(), vectorstore.Filter{UserID: "alice", DocID: "n1"})
		return err == nil && n > 0
	}, 2*time.Second, 10*time.Millisecond, "event flows through debounce, queue, and worker")
}

func TestSyncService_TriggerScanIndexes(t *testing.T) {
	f := newFixture(t, Config{})
	f.notes.Put("alice",
		source.Listing{DocID: "n2", ModifiedAt: time.Now()},
		&source.Content{Data: []byte("scanned document"), MimeType: "text/plain"})

	res, err := f.svc.TriggerScan(t.Context(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Queued)

	require.Eventually(t, func() bool {
		n, err := f.store.Count(context.Background(), vectorstore.Filter{UserID: "alice", DocID: "n2"})
		return err == nil && n > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSyncService_Status(t *testing.T) {
	f := newFixture(t, Config{})

	st, err := f.svc.Status(t.Context(), "alice")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, st.State)
	assert.Zero(t, st.Indexed)
	assert.Nil(t, st.LastSync)

	f.notes.Put("alice",
		source.Listing{DocID: "n1", ModifiedAt: time.Now()},
		&source.Content{Data: []byte("body"), MimeType: "text/plain"})
	_, err = f.svc.TriggerScan(t.Context(), "alice")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, err := f.svc.Status(context.Background(), "alice")
		return err == nil && st.Indexed == 1 && st.Pending == 0
	}, 2*time.Second, 10*time.Millisecond)

	st, err = f.svc.Status(t.Context(), "alice")
	require.NoError(t, err)
	assert.NotNil(t, st.LastSync)
	assert.Equal(t, StateIdle, st.State)
}

func TestSyncService_ShutdownDrainsQueue(t *testing.T) {
	f := newFixture(t, Config{})
	f.notes.Put("alice",
		source.Listing{DocID: "n1", ModifiedAt: time.Now()},
		&source.Content{Data: []byte("drain me"), MimeType: "text/plain"})
	_, err := f.svc.TriggerScan(t.Context(), "alice")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Shutdown(ctx))

	n, err := f.store.Count(context.Background(), vectorstore.Filter{UserID: "alice", DocID: "n1"})
	require.NoError(t, err)
	assert.Positive(t, n, "queued work finishes before shutdown returns")
}
