package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync/atomic"
)

// FakeProvider is a deterministic in-process Provider for tests. Each text
// hashes to a stable unit vector, so identical texts always embed
// identically and different texts almost never collide.
type FakeProvider struct {
	Dim int

	// FailNext forces the next call to fail with the given error once.
	failNext atomic.Pointer[error]

	calls atomic.Int64
}

// NewFakeProvider creates a fake provider with the given dimension.
func NewFakeProvider(dim int) *FakeProvider {
	if dim == 0 {
		dim = 8
	}
	return &FakeProvider{Dim: dim}
}

// FailOnce makes the next embedding call return err.
func (p *FakeProvider) FailOnce(err error) {
	p.failNext.Store(&err)
}

// Calls returns how many embedding calls were made.
func (p *FakeProvider) Calls() int64 {
	return p.calls.Load()
}

func (p *FakeProvider) vector(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, p.Dim)
	var norm float64
	for i := range vec {
		// xorshift over the seed gives a stable pseudo-random component.
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		vec[i] = float32(int64(seed%2000)-1000) / 1000
		norm += float64(vec[i]) * float64(vec[i])
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

func (p *FakeProvider) takeErr() error {
	if errp := p.failNext.Swap(nil); errp != nil {
		return *errp
	}
	return nil
}

func (p *FakeProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	p.calls.Add(1)
	if err := p.takeErr(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

func (p *FakeProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	if err := p.takeErr(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	return p.vector(text), nil
}

func (p *FakeProvider) Dimension() int { return p.Dim }

func (p *FakeProvider) Close() error { return nil }

var _ Provider = (*FakeProvider)(nil)
