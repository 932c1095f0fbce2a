// Package server provides the HTTP API for corpusd.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/document"
	"github.com/fyrsmithlabs/corpusd/internal/intake"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/orchestrator"
	"github.com/fyrsmithlabs/corpusd/internal/search"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server exposes search, sync control, and health endpoints.
type Server struct {
	echo   *echo.Echo
	engine *search.Engine
	sync   *orchestrator.SyncService
	logger *logging.Logger
	config Config
}

// NewServer creates the HTTP server.
func NewServer(engine *search.Engine, sync *orchestrator.SyncService,
	logger *logging.Logger, cfg Config) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("search engine is required")
	}
	if sync == nil {
		return nil, fmt.Errorf("sync service is required")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 9090
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			reqID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), reqID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		engine: engine,
		sync:   sync,
		logger: logger.Named("http"),
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/search", s.handleSearch)
	v1.GET("/chunk-context", s.handleChunkContext)
	v1.POST("/events", s.handleEvent)
	v1.POST("/users/:user/scan", s.handleScan)
	v1.GET("/users/:user/status", s.handleStatus)
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleSearch(c echo.Context) error {
	var req search.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp, err := s.engine.Search(c.Request().Context(), req)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, resp)
	case errors.Is(err, search.ErrMissingUser),
		errors.Is(err, search.ErrEmptyQuery),
		errors.Is(err, search.ErrBadMode),
		errors.Is(err, search.ErrBadFusion),
		errors.Is(err, search.ErrBadThreshold):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, search.ErrAccessCheckTimeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "access verification timed out")
	default:
		s.logger.Error(c.Request().Context(), "search failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}
}

func (s *Server) handleChunkContext(c echo.Context) error {
	userID := c.QueryParam("user_id")
	docType := document.Type(c.QueryParam("doc_type"))
	docID := c.QueryParam("doc_id")
	if userID == "" || docType == "" || docID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id, doc_type and doc_id are required")
	}
	chunkIndex, err := strconv.Atoi(c.QueryParam("chunk_index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "chunk_index must be an integer")
	}
	window := 1
	if w := c.QueryParam("window"); w != "" {
		window, err = strconv.Atoi(w)
		if err != nil || window < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "window must be a non-negative integer")
		}
	}

	res, err := s.engine.ChunkContext(c.Request().Context(), userID, docType, docID, chunkIndex, window)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, res)
	case errors.Is(err, search.ErrContextNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "chunk context not found")
	default:
		s.logger.Error(c.Request().Context(), "chunk context failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "chunk context failed")
	}
}

func (s *Server) handleEvent(c echo.Context) error {
	var ev intake.Event
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.sync.SubmitEvent(c.Request().Context(), ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleScan(c echo.Context) error {
	userID := c.Param("user")
	res, err := s.sync.TriggerScan(c.Request().Context(), userID)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, res)
	case errors.Is(err, orchestrator.ErrScanInProgress):
		return echo.NewHTTPError(http.StatusConflict, "scan already in progress")
	default:
		s.logger.Error(c.Request().Context(), "scan failed",
			zap.String("user", userID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "scan failed")
	}
}

func (s *Server) handleStatus(c echo.Context) error {
	st, err := s.sync.Status(c.Request().Context(), c.Param("user"))
	if err != nil {
		s.logger.Error(c.Request().Context(), "status failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "status failed")
	}
	return c.JSON(http.StatusOK, st)
}

// Handler returns the underlying handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
