// Package embeddings provides dense embedding generation via multiple
// providers plus a sparse term-weight encoder for the keyword channel.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrRateLimited indicates the provider rejected the call for rate
	// limiting. Callers back off longer than for other transient failures.
	ErrRateLimited = errors.New("embedding provider rate limited")
)

// Provider generates dense embeddings for documents and queries.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts, one per input.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query. Some models
	// optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "tei" or "fastembed".
	Provider string
	// Model is the embedding model name.
	Model string
	// BaseURL is the TEI URL (only used for TEI).
	BaseURL string
	// CacheDir is the model cache directory (only used for FastEmbed).
	CacheDir string
	// RatePerSecond caps provider calls per second; 0 disables limiting.
	RatePerSecond float64
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "tei", "":
		return NewTEIProvider(TEIConfig{
			BaseURL:       cfg.BaseURL,
			Model:         cfg.Model,
			RatePerSecond: cfg.RatePerSecond,
		})
	case "fastembed":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
