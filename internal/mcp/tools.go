package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/corpusd/internal/document"
	"github.com/fyrsmithlabs/corpusd/internal/orchestrator"
	"github.com/fyrsmithlabs/corpusd/internal/search"
)

type searchInput struct {
	UserID   string   `json:"user_id" jsonschema:"required,User whose corpus to search"`
	Query    string   `json:"query" jsonschema:"required,Search query text"`
	Mode     string   `json:"mode,omitempty" jsonschema:"Retrieval mode: semantic, bm25 or hybrid (default hybrid)"`
	Fusion   string   `json:"fusion,omitempty" jsonschema:"Hybrid fusion: rrf or dbsf (default rrf)"`
	Limit    int      `json:"limit,omitempty" jsonschema:"Maximum results (default 10)"`
	DocTypes []string `json:"doc_types,omitempty" jsonschema:"Restrict to these document types"`

	ScoreThreshold float64 `json:"score_threshold,omitempty" jsonschema:"Drop hits below this fraction of the top score (0..1)"`
}

type searchOutput struct {
	Results []search.Result `json:"results" jsonschema:"Matching chunks ordered by score"`
	Count   int             `json:"count" jsonschema:"Number of results returned"`
}

type scanInput struct {
	UserID string `json:"user_id" jsonschema:"required,User whose sources to scan"`
}

type scanOutput struct {
	Queued       int `json:"queued" jsonschema:"Index tasks enqueued"`
	Deletes      int `json:"deletes" jsonschema:"Delete tasks enqueued"`
	StaleRemoved int `json:"stale_removed" jsonschema:"Abandoned placeholder chunks removed"`
	ListErrors   int `json:"list_errors" jsonschema:"Document types whose listing failed"`
}

type statusInput struct {
	UserID string `json:"user_id" jsonschema:"required,User to report on"`
}

type contextInput struct {
	UserID     string `json:"user_id" jsonschema:"required,User whose corpus holds the document"`
	DocType    string `json:"doc_type" jsonschema:"required,Document type"`
	DocID      string `json:"doc_id" jsonschema:"required,Document ID"`
	ChunkIndex int    `json:"chunk_index" jsonschema:"required,Chunk to expand around"`
	Window     int    `json:"window,omitempty" jsonschema:"Neighbor chunks on each side (default 1)"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "corpus_search",
		Description: "Search a user's indexed documents with semantic, keyword, or hybrid retrieval",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args searchInput) (*mcp.CallToolResult, searchOutput, error) {
		types := make([]document.Type, 0, len(args.DocTypes))
		for _, t := range args.DocTypes {
			types = append(types, document.Type(t))
		}
		resp, err := s.engine.Search(ctx, search.Request{
			UserID:         args.UserID,
			Query:          args.Query,
			Mode:           search.Mode(args.Mode),
			Fusion:         search.Fusion(args.Fusion),
			Limit:          args.Limit,
			DocTypes:       types,
			ScoreThreshold: args.ScoreThreshold,
		})
		if err != nil {
			return nil, searchOutput{}, err
		}
		out := searchOutput{Results: resp.Results, Count: len(resp.Results)}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("%d results", out.Count)},
			},
		}, out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "trigger_scan",
		Description: "Run a discovery scan for one user now instead of waiting for the next cycle",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args scanInput) (*mcp.CallToolResult, scanOutput, error) {
		res, err := s.sync.TriggerScan(ctx, args.UserID)
		if err != nil {
			return nil, scanOutput{}, err
		}
		out := scanOutput{
			Queued:       res.Queued,
			Deletes:      res.Deletes,
			StaleRemoved: res.StaleRemoved,
			ListErrors:   res.ListErrors,
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("scan queued %d index and %d delete tasks", out.Queued, out.Deletes)},
			},
		}, out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "sync_status",
		Description: "Report a user's sync state: indexed documents, pending work, last scan",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args statusInput) (*mcp.CallToolResult, *orchestrator.Status, error) {
		st, err := s.sync.Status(ctx, args.UserID)
		if err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("state=%s indexed=%d pending=%d", st.State, st.Indexed, st.Pending)},
			},
		}, st, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "chunk_context",
		Description: "Expand a search hit into its surrounding document text",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args contextInput) (*mcp.CallToolResult, *search.ContextResult, error) {
		window := args.Window
		if window == 0 {
			window = 1
		}
		res, err := s.engine.ChunkContext(ctx, args.UserID,
			document.Type(args.DocType), args.DocID, args.ChunkIndex, window)
		if err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: res.Text},
			},
		}, res, nil
	})
}
