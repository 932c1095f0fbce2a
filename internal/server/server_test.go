package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
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

type fixture struct {
	srv   *Server
	notes *source.FakeClient
	store *vectorstore.MemoryGateway
}

func newFixture(t *testing.T) *fixture {
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
	embed := embeddings.NewFakeProvider(8)
	enc := embeddings.NewSparseEncoder(embeddings.SparseEncoderConfig{})

	verifier := access.NewVerifier(reg, access.Config{TTL: time.Minute}, logger)
	engine := search.NewEngine(store, embed, enc, verifier, search.Config{}, logger)

	chunks, err := chunker.New(chunker.Config{Size: 128, Overlap: 16})
	require.NoError(t, err)
	proc := processor.New(reg, marks, store, embed, enc, chunks,
		processor.Config{Workers: 1, MaxRetries: 1, RetryBackoff: time.Millisecond, RateLimitBackoff: time.Millisecond},
		logger)

	tasks := queue.New(64)
	scan := scanner.New(reg, marks, store,
		func(ctx context.Context, task document.Task) error { return tasks.Enqueue(ctx, task) },
		scanner.Config{Interval: time.Minute, StalenessCycles: 5}, logger)
	sync := orchestrator.New(orchestrator.Config{DebounceWindow: 5 * time.Millisecond},
		tasks, scan, proc, marks, logger)
	sync.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sync.Shutdown(ctx)
	})

	srv, err := NewServer(engine, sync, logger, Config{})
	require.NoError(t, err)
	return &fixture{srv: srv, notes: notes, store: store}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoContentType, "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSearch_BadRequest(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/search", `{"query":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/search", `{"user_id":"alice","query":"x","mode":"psychic"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch_ReturnsResults(t *testing.T) {
	f := newFixture(t)
	// Index one finalized chunk directly.
	embed := embeddings.NewFakeProvider(8)
	dense, err := embed.EmbedDocuments(context.Background(), []string{"release checklist"})
	require.NoError(t, err)
	key := document.Key{UserID: "alice", DocType: document.TypeNote, DocID: "n1"}
	require.NoError(t, f.store.Upsert(context.Background(), []vectorstore.Point{{
		ID: document.PointID(key, 0), UserID: "alice", DocType: document.TypeNote,
		DocID: "n1", Content: "release checklist", TotalChunks: 1,
		Dense: dense[0], IndexedAt: time.Now(),
	}}))
	f.notes.Put("alice", source.Listing{DocID: "n1"}, &source.Content{Data: []byte("x")})

	rec := f.do(http.MethodPost, "/api/v1/search",
		`{"user_id":"alice","query":"release checklist","mode":"semantic"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp search.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "n1", resp.Results[0].DocID)
}

func TestEvents_AcceptedAndRejected(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/events",
		`{"user_id":"alice","doc_type":"note","doc_id":"n1"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/events", `{"doc_type":"note","doc_id":"n1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanAndStatus(t *testing.T) {
	f := newFixture(t)
	f.notes.Put("alice",
		source.Listing{DocID: "n1", ModifiedAt: time.Now()},
		&source.Content{Data: []byte("scan target"), MimeType: "text/plain"})

	rec := f.do(http.MethodPost, "/api/v1/users/alice/scan", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"queued":1`)

	require.Eventually(t, func() bool {
		rec := f.do(http.MethodGet, "/api/v1/users/alice/status", "")
		if rec.Code != http.StatusOK {
			return false
		}
		var st orchestrator.Status
		if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
			return false
		}
		return st.Indexed == 1 && st.State == orchestrator.StateIdle
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChunkContext_Endpoint(t *testing.T) {
	f := newFixture(t)
	key := document.Key{UserID: "alice", DocType: document.TypeNote, DocID: "doc"}
	require.NoError(t, f.store.Upsert(context.Background(), []vectorstore.Point{{
		ID: document.PointID(key, 0), UserID: "alice", DocType: document.TypeNote,
		DocID: "doc", Content: "only chunk", TotalChunks: 1, EndOffset: 10,
		IndexedAt: time.Now(),
	}}))
	f.notes.Put("alice", source.Listing{DocID: "doc"}, &source.Content{Data: []byte("x")})

	rec := f.do(http.MethodGet,
		"/api/v1/chunk-context?user_id=alice&doc_type=note&doc_id=doc&chunk_index=0&window=1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "only chunk")

	rec = f.do(http.MethodGet,
		"/api/v1/chunk-context?user_id=alice&doc_type=note&doc_id=missing&chunk_index=0", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/chunk-context?user_id=alice", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
