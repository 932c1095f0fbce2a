package search

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/corpusd/internal/access"
	"github.com/fyrsmithlabs/corpusd/internal/document"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// ErrContextNotFound covers both a missing document and one the user may not
// read; callers cannot distinguish the two.
var ErrContextNotFound = errors.New("search: chunk context not found")

// ContextResult is the expanded text around one chunk.
type ContextResult struct {
	DocType     document.Type `json:"doc_type"`
	DocID       string        `json:"doc_id"`
	Title       string        `json:"title,omitempty"`
	Text        string        `json:"text"`
	FirstChunk  int           `json:"first_chunk"`
	LastChunk   int           `json:"last_chunk"`
	TotalChunks int           `json:"total_chunks"`
	StartOffset int           `json:"start_offset"`
	EndOffset   int           `json:"end_offset"`
	// Page is the page the requested chunk starts on, for paginated
	// documents; zero otherwise.
	Page int `json:"page_number,omitempty"`
}

// ChunkContext returns the chunk at chunkIndex plus up to window neighbors
// on each side, stitched back into continuous text. Overlapping bytes
// between adjacent chunks are deduplicated using their stored offsets.
func (e *Engine) ChunkContext(ctx context.Context, userID string, docType document.Type,
	docID string, chunkIndex, window int) (*ContextResult, error) {
	if window < 0 {
		window = 0
	}

	if !e.verifier.Check(ctx, userID, access.Ref{DocType: docType, DocID: docID}) {
		return nil, ErrContextNotFound
	}

	points, err := e.store.Scroll(ctx, vectorstore.Filter{
		UserID:      userID,
		DocType:     docType,
		DocID:       docID,
		Placeholder: vectorstore.Bool(false),
	}, 0)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrContextNotFound
	}

	sort.Slice(points, func(i, j int) bool { return points[i].ChunkIndex < points[j].ChunkIndex })

	lo := chunkIndex - window
	hi := chunkIndex + window
	var selected []vectorstore.Point
	found := false
	page := 0
	for _, p := range points {
		if p.ChunkIndex == chunkIndex {
			found = true
			page = p.Page
		}
		if p.ChunkIndex >= lo && p.ChunkIndex <= hi {
			selected = append(selected, p)
		}
	}
	if !found {
		return nil, ErrContextNotFound
	}

	var b strings.Builder
	prevEnd := -1
	for i, p := range selected {
		text := p.Content
		if i > 0 {
			switch {
			case p.StartOffset < prevEnd:
				// Adjacent chunks share overlap bytes; skip the repeat.
				skip := prevEnd - p.StartOffset
				if skip >= len(text) {
					continue
				}
				text = text[skip:]
			case selected[i-1].ChunkIndex+1 != p.ChunkIndex:
				b.WriteString("\n[...]\n")
			default:
				b.WriteString("\n")
			}
		}
		b.WriteString(text)
		prevEnd = p.EndOffset
	}

	first := selected[0]
	last := selected[len(selected)-1]
	return &ContextResult{
		DocType:     docType,
		DocID:       docID,
		Title:       first.Title,
		Text:        b.String(),
		FirstChunk:  first.ChunkIndex,
		LastChunk:   last.ChunkIndex,
		TotalChunks: first.TotalChunks,
		StartOffset: first.StartOffset,
		EndOffset:   last.EndOffset,
		Page:        page,
	}, nil
}
