package embeddings

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTEIProvider_Validation(t *testing.T) {
	_, err := NewTEIProvider(TEIConfig{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	p, err := NewTEIProvider(TEIConfig{BaseURL: "http://localhost:8080", Model: "BAAI/bge-small-en-v1.5"})
	require.NoError(t, err)
	assert.Equal(t, 384, p.Dimension())
}

func TestTEIProvider_EmbedDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed", r.URL.Path)
		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		inputs := req.Inputs.([]interface{})
		out := make([][]float32, len(inputs))
		for i := range out {
			out[i] = []float32{0.1, 0.2, 0.3}
		}
		require.NoError(t, json.NewEncoder(w).Encode(out))
	}))
	defer srv.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	vectors, err := p.EmbedDocuments(t.Context(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vectors[0])

	q, err := p.EmbedQuery(t.Context(), "query")
	require.NoError(t, err)
	assert.Len(t, q, 3)
}

func TestTEIProvider_RateLimitedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.EmbedDocuments(t.Context(), []string{"text"})
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestTEIProvider_EmptyInput(t *testing.T) {
	p, err := NewTEIProvider(TEIConfig{BaseURL: "http://localhost:8080"})
	require.NoError(t, err)

	_, err = p.EmbedDocuments(t.Context(), nil)
	require.ErrorIs(t, err, ErrEmptyInput)

	_, err = p.EmbedQuery(t.Context(), "")
	require.ErrorIs(t, err, ErrEmptyInput)
}
