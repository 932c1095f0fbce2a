// Package mcp exposes corpusd over the Model Context Protocol so assistant
// runtimes can search the corpus and drive sync directly.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/orchestrator"
	"github.com/fyrsmithlabs/corpusd/internal/search"
)

// Config holds MCP server identity.
type Config struct {
	Name    string
	Version string
}

// Server wraps the MCP server with corpusd tools.
type Server struct {
	mcp    *mcp.Server
	engine *search.Engine
	sync   *orchestrator.SyncService
	logger *logging.Logger
}

// NewServer creates the MCP server and registers all tools.
func NewServer(cfg Config, engine *search.Engine, sync *orchestrator.SyncService,
	logger *logging.Logger) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("search engine is required")
	}
	if sync == nil {
		return nil, fmt.Errorf("sync service is required")
	}
	if cfg.Name == "" {
		cfg.Name = "corpusd"
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		engine: engine,
		sync:   sync,
		logger: logger.Named("mcp"),
	}
	s.registerTools()
	return s, nil
}

// Run serves MCP over stdio until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
