package embeddings

import (
	"hash/fnv"
	"sort"
	"strings"
	"unicode"
)

// SparseVector is a term-weight vector for the keyword retrieval channel.
// Indices are token hashes; values are term weights.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Empty reports whether the vector carries no terms.
func (v SparseVector) Empty() bool {
	return len(v.Indices) == 0
}

// SparseEncoderConfig tunes the BM25-style term weighting.
type SparseEncoderConfig struct {
	// K1 controls term-frequency saturation.
	K1 float64
	// B controls document-length normalization.
	B float64
	// AvgDocLen is the assumed average document length in tokens. Corpus
	// statistics live in the vector store, not here; a fixed estimate keeps
	// encoding stateless and re-index idempotent.
	AvgDocLen float64
}

// ApplyDefaults sets default values for unset fields.
func (c *SparseEncoderConfig) ApplyDefaults() {
	if c.K1 == 0 {
		c.K1 = 1.2
	}
	if c.B == 0 {
		c.B = 0.75
	}
	if c.AvgDocLen == 0 {
		c.AvgDocLen = 256
	}
}

// SparseEncoder produces sparse term-weight vectors for documents and
// queries. Document weights carry BM25 term-frequency saturation; inverse
// document frequency is applied server-side by the vector store's IDF
// modifier, so the encoder stays stateless.
type SparseEncoder struct {
	cfg SparseEncoderConfig
}

// NewSparseEncoder creates an encoder with the given config.
func NewSparseEncoder(cfg SparseEncoderConfig) *SparseEncoder {
	cfg.ApplyDefaults()
	return &SparseEncoder{cfg: cfg}
}

// EncodeDocument produces the sparse vector for a document chunk.
func (e *SparseEncoder) EncodeDocument(text string) SparseVector {
	counts, total := termCounts(text)
	if total == 0 {
		return SparseVector{}
	}

	lenNorm := 1 - e.cfg.B + e.cfg.B*(float64(total)/e.cfg.AvgDocLen)

	vec := SparseVector{
		Indices: make([]uint32, 0, len(counts)),
		Values:  make([]float32, 0, len(counts)),
	}
	for idx, tf := range counts {
		w := (float64(tf) * (e.cfg.K1 + 1)) / (float64(tf) + e.cfg.K1*lenNorm)
		vec.Indices = append(vec.Indices, idx)
		vec.Values = append(vec.Values, float32(w))
	}
	sortSparse(&vec)
	return vec
}

// EncodeQuery produces the sparse vector for a query string. Query terms
// weigh 1 each; scoring comes from the stored document weights and the
// store-side IDF.
func (e *SparseEncoder) EncodeQuery(text string) SparseVector {
	counts, total := termCounts(text)
	if total == 0 {
		return SparseVector{}
	}

	vec := SparseVector{
		Indices: make([]uint32, 0, len(counts)),
		Values:  make([]float32, 0, len(counts)),
	}
	for idx := range counts {
		vec.Indices = append(vec.Indices, idx)
		vec.Values = append(vec.Values, 1)
	}
	sortSparse(&vec)
	return vec
}

// termCounts tokenizes text and returns hashed-term frequencies plus the
// total token count.
func termCounts(text string) (map[uint32]int, int) {
	counts := make(map[uint32]int)
	total := 0
	for _, tok := range tokenize(text) {
		counts[hashTerm(tok)]++
		total++
	}
	return counts, total
}

// tokenize lowercases and splits on anything that is not a letter or digit.
// Single-rune tokens are dropped; they carry no keyword signal.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

func hashTerm(term string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return h.Sum32()
}

// sortSparse orders the vector by index so encoding is deterministic.
func sortSparse(v *SparseVector) {
	order := make([]int, len(v.Indices))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return v.Indices[order[a]] < v.Indices[order[b]] })

	idx := make([]uint32, len(order))
	val := make([]float32, len(order))
	for i, o := range order {
		idx[i] = v.Indices[o]
		val[i] = v.Values[o]
	}
	v.Indices, v.Values = idx, val
}
