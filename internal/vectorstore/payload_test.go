package vectorstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/document"
)

func TestPointPayloadRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second).UTC()
	p := Point{
		ID:          document.PointID(document.Key{UserID: "alice", DocType: document.TypeFile, DocID: "9"}, 2),
		UserID:      "alice",
		DocType:     document.TypeFile,
		DocID:       "9",
		Title:       "report.pdf",
		Path:        "/files/report.pdf",
		Content:     "chunk text",
		ChunkIndex:  2,
		TotalChunks: 5,
		StartOffset: 1200,
		EndOffset:   1800,
		Page:        3,
		Placeholder: true,
		IndexedAt:   now,
	}

	got := pointFromPayload(p.ID, pointPayload(p), nil)

	assert.Equal(t, p.UserID, got.UserID)
	assert.Equal(t, p.DocType, got.DocType)
	assert.Equal(t, p.DocID, got.DocID)
	assert.Equal(t, p.Title, got.Title)
	assert.Equal(t, p.Path, got.Path)
	assert.Equal(t, p.Content, got.Content)
	assert.Equal(t, p.ChunkIndex, got.ChunkIndex)
	assert.Equal(t, p.TotalChunks, got.TotalChunks)
	assert.Equal(t, p.StartOffset, got.StartOffset)
	assert.Equal(t, p.EndOffset, got.EndOffset)
	assert.Equal(t, p.Page, got.Page)
	assert.True(t, got.Placeholder)
	assert.Equal(t, now, got.IndexedAt)
}

func TestPointPayload_OmitsEmptyOptionalFields(t *testing.T) {
	payload := pointPayload(Point{UserID: "u", DocType: document.TypeNote, DocID: "1"})

	_, hasTitle := payload[document.FieldTitle]
	_, hasPath := payload[document.FieldPath]
	_, hasPage := payload[document.FieldPage]
	assert.False(t, hasTitle)
	assert.False(t, hasPath)
	assert.False(t, hasPage)
}

func TestBuildFilter(t *testing.T) {
	t.Run("empty filter is nil", func(t *testing.T) {
		assert.Nil(t, buildFilter(Filter{}))
	})

	t.Run("conditions accumulate", func(t *testing.T) {
		f := buildFilter(Filter{
			UserID:        "alice",
			DocTypes:      []document.Type{document.TypeNote, document.TypeFile},
			Placeholder:   Bool(false),
			IndexedBefore: time.Unix(1000, 0),
			MinChunkIndex: Int(3),
		})
		require.NotNil(t, f)
		assert.Len(t, f.Must, 5)
	})

	t.Run("path filter for id-less deletions", func(t *testing.T) {
		f := buildFilter(Filter{UserID: "alice", Path: "/files/gone.md"})
		require.NotNil(t, f)
		assert.Len(t, f.Must, 2)
	})
}
