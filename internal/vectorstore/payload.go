package vectorstore

import (
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/fyrsmithlabs/corpusd/internal/document"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
)

// Named vectors on every point. One logical collection carries both
// retrieval channels.
const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
)

// pointPayload builds the Qdrant payload for a point.
func pointPayload(p Point) map[string]*qdrant.Value {
	payload := map[string]*qdrant.Value{
		document.FieldUserID:      {Kind: &qdrant.Value_StringValue{StringValue: p.UserID}},
		document.FieldDocType:     {Kind: &qdrant.Value_StringValue{StringValue: string(p.DocType)}},
		document.FieldDocID:       {Kind: &qdrant.Value_StringValue{StringValue: p.DocID}},
		document.FieldContent:     {Kind: &qdrant.Value_StringValue{StringValue: p.Content}},
		document.FieldChunkIndex:  {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(p.ChunkIndex)}},
		document.FieldTotalChunks: {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(p.TotalChunks)}},
		document.FieldStartOffset: {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(p.StartOffset)}},
		document.FieldEndOffset:   {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(p.EndOffset)}},
		document.FieldPlaceholder: {Kind: &qdrant.Value_BoolValue{BoolValue: p.Placeholder}},
		document.FieldIndexedAt:   {Kind: &qdrant.Value_IntegerValue{IntegerValue: p.IndexedAt.Unix()}},
	}
	if p.Title != "" {
		payload[document.FieldTitle] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: p.Title}}
	}
	if p.Path != "" {
		payload[document.FieldPath] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: p.Path}}
	}
	if p.Page > 0 {
		payload[document.FieldPage] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(p.Page)}}
	}
	return payload
}

// pointFromPayload reconstructs a Point from a Qdrant payload and vectors.
func pointFromPayload(id string, payload map[string]*qdrant.Value, vectors *qdrant.VectorsOutput) Point {
	p := Point{ID: id}

	str := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	num := func(key string) int {
		if v, ok := payload[key]; ok {
			return int(v.GetIntegerValue())
		}
		return 0
	}

	p.UserID = str(document.FieldUserID)
	p.DocType = document.Type(str(document.FieldDocType))
	p.DocID = str(document.FieldDocID)
	p.Title = str(document.FieldTitle)
	p.Path = str(document.FieldPath)
	p.Content = str(document.FieldContent)
	p.ChunkIndex = num(document.FieldChunkIndex)
	p.TotalChunks = num(document.FieldTotalChunks)
	p.StartOffset = num(document.FieldStartOffset)
	p.EndOffset = num(document.FieldEndOffset)
	p.Page = num(document.FieldPage)
	if v, ok := payload[document.FieldPlaceholder]; ok {
		p.Placeholder = v.GetBoolValue()
	}
	if v, ok := payload[document.FieldIndexedAt]; ok {
		p.IndexedAt = time.Unix(v.GetIntegerValue(), 0).UTC()
	}

	if vectors != nil {
		if m := vectors.GetVectors(); m != nil {
			if dense, ok := m.Vectors[denseVectorName]; ok {
				p.Dense = dense.GetData()
			}
			if sparse, ok := m.Vectors[sparseVectorName]; ok {
				if si := sparse.GetIndices(); si != nil {
					p.Sparse = embeddings.SparseVector{
						Indices: si.GetData(),
						Values:  sparse.GetData(),
					}
				}
			}
		}
	}
	return p
}

// buildFilter translates a Filter into Qdrant conditions.
func buildFilter(f Filter) *qdrant.Filter {
	var must []*qdrant.Condition

	match := func(key, value string) *qdrant.Condition {
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   key,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
				},
			},
		}
	}

	if f.UserID != "" {
		must = append(must, match(document.FieldUserID, f.UserID))
	}
	if f.DocType != "" {
		must = append(must, match(document.FieldDocType, string(f.DocType)))
	}
	if len(f.DocTypes) > 0 {
		keywords := make([]string, len(f.DocTypes))
		for i, t := range f.DocTypes {
			keywords[i] = string(t)
		}
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: document.FieldDocType,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keywords{
						Keywords: &qdrant.RepeatedStrings{Strings: keywords},
					}},
				},
			},
		})
	}
	if f.DocID != "" {
		must = append(must, match(document.FieldDocID, f.DocID))
	}
	if f.Path != "" {
		must = append(must, match(document.FieldPath, f.Path))
	}
	if f.Placeholder != nil {
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   document.FieldPlaceholder,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: *f.Placeholder}},
				},
			},
		})
	}
	if !f.IndexedBefore.IsZero() {
		lt := float64(f.IndexedBefore.Unix())
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   document.FieldIndexedAt,
					Range: &qdrant.Range{Lt: &lt},
				},
			},
		})
	}
	if f.MinChunkIndex != nil {
		gte := float64(*f.MinChunkIndex)
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   document.FieldChunkIndex,
					Range: &qdrant.Range{Gte: &gte},
				},
			},
		})
	}

	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}
