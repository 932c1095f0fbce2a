// Package chunker splits normalized text into overlapping windows with
// stable byte offsets into the original text. Offsets are what make context
// expansion possible later without re-running extraction.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Config controls window sizing.
type Config struct {
	// Size is the target window size in bytes.
	Size int
	// Overlap is how many bytes of the previous window each subsequent
	// window repeats.
	Overlap int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Size == 0 {
		c.Size = 1600
	}
	if c.Overlap == 0 {
		c.Overlap = 200
	}
}

// Validate checks the config for errors.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("overlap must be in [0, size), got %d with size %d", c.Overlap, c.Size)
	}
	return nil
}

// Chunk is one window of the original text.
type Chunk struct {
	Index int
	// Start and End are byte offsets into the original normalized text.
	Start int
	End   int
	Text  string
}

// Chunker splits text into overlapping windows.
type Chunker struct {
	cfg Config
}

// New creates a Chunker with the given config.
func New(cfg Config) (*Chunker, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &Chunker{cfg: cfg}, nil
}

// Overlap returns the configured overlap in bytes. The search engine uses it
// to trim duplicated text during context expansion.
func (c *Chunker) Overlap() int {
	return c.cfg.Overlap
}

// Split chunks text into windows of roughly cfg.Size bytes with cfg.Overlap
// bytes of overlap. Window ends prefer a paragraph break, then a newline,
// then a sentence end, then a space; a hard cut at a rune boundary is the
// last resort. The loop always advances the window start by at least one
// byte per iteration, so pathological inputs (a single token wider than the
// window) still terminate.
func (c *Chunker) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + c.cfg.Size
		if end >= len(text) {
			end = len(text)
		} else {
			end = c.seekBoundary(text, start, end)
		}

		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Start: start,
			End:   end,
			Text:  text[start:end],
		})

		if end == len(text) {
			break
		}

		next := end - c.cfg.Overlap
		if next <= start {
			// Forced forward progress regardless of boundary seeking.
			next = start + 1
		}
		// Never start mid-rune.
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		start = next
	}
	return chunks
}

// seekBoundary moves a tentative window end backwards to the best split
// point within the second half of the window. Returns a rune-aligned offset
// in (start, limit].
func (c *Chunker) seekBoundary(text string, start, limit int) int {
	// Only look back over the second half so boundary seeking can never
	// collapse the window to nothing.
	floor := start + c.cfg.Size/2

	window := text[floor:limit]
	for _, sep := range []string{"\n\n", "\n", ". ", " "} {
		if i := strings.LastIndex(window, sep); i >= 0 {
			return floor + i + len(sep)
		}
	}

	// Hard cut: back up to a rune boundary.
	for limit > start+1 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return limit
}
