package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

func hit(id string, score float32) vectorstore.Hit {
	return vectorstore.Hit{Point: vectorstore.Point{ID: id, DocID: id}, Score: score}
}

func TestFuseRRF_ExactScores(t *testing.T) {
	lists := [][]vectorstore.Hit{
		{hit("A", 0.9), hit("B", 0.8), hit("C", 0.7)},
		{hit("B", 12.0), hit("A", 11.0), hit("D", 10.0)},
	}
	out := fuseRRF(lists, 60)
	require.Len(t, out, 4)

	// A and B both hold ranks 1 and 2 across the lists.
	both := 1.0/61 + 1.0/62
	assert.InDelta(t, both, out[0].score, 1e-12)
	assert.InDelta(t, both, out[1].score, 1e-12)
	assert.Equal(t, "A", out[0].point.ID, "ties keep first-seen order")
	assert.Equal(t, "B", out[1].point.ID)

	assert.InDelta(t, 1.0/63, out[2].score, 1e-12)
	assert.Equal(t, "C", out[2].point.ID)
	assert.Equal(t, "D", out[3].point.ID)
}

func TestFuseRRF_IgnoresRawScoreScale(t *testing.T) {
	// One channel scores in [0,1], the other in BM25 magnitudes. Ranks are
	// all that survives fusion.
	lists := [][]vectorstore.Hit{
		{hit("A", 0.01)},
		{hit("A", 9000)},
	}
	out := fuseRRF(lists, 60)
	require.Len(t, out, 1)
	assert.InDelta(t, 2.0/61, out[0].score, 1e-12)
}

func TestFuseDBSF_UniformListTiesAtOne(t *testing.T) {
	lists := [][]vectorstore.Hit{
		{hit("A", 0.5), hit("B", 0.5)},
	}
	out := fuseDBSF(lists)
	require.Len(t, out, 2)
	assert.InDelta(t, 1.0, out[0].score, 1e-12, "zero variance ties every hit at the top")
	assert.InDelta(t, 1.0, out[1].score, 1e-12)
	assert.Equal(t, "A", out[0].point.ID, "ties keep first-seen order")
}

func TestFuseDBSF_ConsensusOutranksSingleChannel(t *testing.T) {
	// X is mid-pack in the first channel and leads the second; it must beat
	// Y, which tops only one channel.
	lists := [][]vectorstore.Hit{
		{hit("Y", 0.9), hit("X", 0.6), hit("Z", 0.3)},
		{hit("X", 5), hit("W", 1)},
	}
	out := fuseDBSF(lists)
	require.Len(t, out, 4)
	assert.Equal(t, "X", out[0].point.ID)
	assert.InDelta(t, 1.0, out[0].score, 1e-12, "top fused score normalizes to 1")
	assert.Equal(t, "Y", out[1].point.ID)
	assert.Less(t, out[1].score, 1.0)
}

func TestFuseDBSF_BoundedZeroOne(t *testing.T) {
	lists := [][]vectorstore.Hit{
		{hit("A", 100), hit("B", 1), hit("C", 0.5)},
		{hit("A", 0.99), hit("D", 0.2)},
	}
	out := fuseDBSF(lists)
	for _, c := range out {
		assert.GreaterOrEqual(t, c.score, 0.0)
		assert.LessOrEqual(t, c.score, 1.0)
	}
	assert.Equal(t, "A", out[0].point.ID, "hit leading both channels stays on top")
}

func TestNormalizeByMax(t *testing.T) {
	out := normalizeByMax([]vectorstore.Hit{hit("A", 8), hit("B", 4), hit("C", 2)})
	require.Len(t, out, 3)
	assert.InDelta(t, 1.0, out[0].score, 1e-12)
	assert.InDelta(t, 0.5, out[1].score, 1e-12)
	assert.InDelta(t, 0.25, out[2].score, 1e-12)

	assert.Empty(t, normalizeByMax(nil))
}
