package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, cfg Config) *Chunker {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Size: 100, Overlap: 100})
	require.Error(t, err)

	_, err = New(Config{Size: 100, Overlap: -1})
	require.Error(t, err)

	c, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, 200, c.Overlap(), "defaults applied")
}

func TestSplit_Empty(t *testing.T) {
	c := mustNew(t, Config{Size: 100, Overlap: 10})
	assert.Nil(t, c.Split(""))
	assert.Nil(t, c.Split("   \n\n  "))
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	c := mustNew(t, Config{Size: 100, Overlap: 10})
	chunks := c.Split("hello world")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 11, chunks[0].End)
	assert.Equal(t, "hello world", chunks[0].Text)
}

func TestSplit_OffsetsSliceOriginalText(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	c := mustNew(t, Config{Size: 200, Overlap: 40})

	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)

	for _, ch := range chunks {
		assert.Equal(t, text[ch.Start:ch.End], ch.Text, "chunk %d", ch.Index)
	}

	// Full coverage: first chunk starts at 0, last ends at len(text), and
	// consecutive chunks overlap or touch.
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(text), chunks[len(chunks)-1].End)
	for i := 1; i < len(chunks); i++ {
		assert.LessOrEqual(t, chunks[i].Start, chunks[i-1].End, "gap before chunk %d", i)
		assert.Greater(t, chunks[i].Start, chunks[i-1].Start, "no forward progress at chunk %d", i)
	}
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	para := strings.Repeat("alpha beta gamma delta. ", 5) // 120 bytes
	text := para + "\n\n" + para + "\n\n" + para
	c := mustNew(t, Config{Size: 160, Overlap: 20})

	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	// The first window (bytes 0..160) contains the paragraph break at 120;
	// boundary seeking should end the chunk just after it.
	assert.Equal(t, len(para)+2, chunks[0].End)
}

func TestSplit_PathologicalSingleWordTerminates(t *testing.T) {
	// One "word" much longer than the window: no boundary to seek, the
	// chunker must hard-cut and still finish.
	text := strings.Repeat("x", 10_000)
	c := mustNew(t, Config{Size: 100, Overlap: 20})

	chunks := c.Split(text)
	require.NotEmpty(t, chunks)
	assert.Less(t, len(chunks), 10_000, "finite chunk count")
	assert.Equal(t, len(text), chunks[len(chunks)-1].End)
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].Start, chunks[i-1].Start)
	}
}

func TestSplit_MultibyteSafe(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 100)
	c := mustNew(t, Config{Size: 64, Overlap: 16})

	for _, ch := range c.Split(text) {
		assert.True(t, len(ch.Text) > 0)
		assert.Equal(t, text[ch.Start:ch.End], ch.Text)
		// No chunk may begin or end mid-rune.
		assert.True(t, ch.Text == strings.ToValidUTF8(ch.Text, ""), "chunk %d split a rune", ch.Index)
	}
}

func TestSplit_OverlapIsCarried(t *testing.T) {
	text := strings.Repeat("z", 250)
	c := mustNew(t, Config{Size: 100, Overlap: 30})

	chunks := c.Split(text)
	require.GreaterOrEqual(t, len(chunks), 2)
	// Hard cuts on uniform text: second chunk starts overlap bytes before
	// the first chunk's end.
	assert.Equal(t, chunks[0].End-30, chunks[1].Start)
}
