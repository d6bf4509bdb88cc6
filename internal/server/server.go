package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"devhub/internal/config"
	"devhub/internal/logging"
	"devhub/internal/runstream"
)

const shutdownGrace = 10 * time.Second

// Server replays scripted runs over the streaming wire protocol.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	store      *ScriptStore
	stepDelay  time.Duration
	logger     logging.Logger
}

// New builds the server and its routes.
func New(cfg config.RuntimeConfig, store *ScriptStore, logger logging.Logger) *Server {
	logger = logging.OrNop(logger)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		store:     store,
		stepDelay: time.Duration(cfg.StepDelayMS) * time.Millisecond,
		logger:    logger,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	engine.Use(cors.New(corsConfig))

	engine.POST("/api/runs", s.handleRunStream)
	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine = engine
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route handler, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("run stream server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		s.logger.Info("shutting down run stream server")
		return s.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleRunStream streams one scripted run as newline-terminated
// `data: <json>` records over the response body.
func (s *Server) handleRunStream(c *gin.Context) {
	var req runstream.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run request: " + err.Error()})
		return
	}
	if req.TaskID == "" || req.ProjectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_id and project_id are required"})
		return
	}

	script, ok := s.store.Get(req.TaskID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run script for task " + req.TaskID})
		return
	}

	s.logger.Info("streaming run: task=%s project=%s steps=%d", req.TaskID, req.ProjectID, len(script.Steps))

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no") // disable nginx buffering
	c.Writer.WriteHeader(http.StatusOK)

	// Comment line first; consumers ignore non-data lines.
	fmt.Fprint(c.Writer, ": stream start\n")
	c.Writer.Flush()

	ctx := c.Request.Context()
	for _, step := range script.Steps {
		if s.stepDelay > 0 {
			select {
			case <-ctx.Done():
				s.logger.Info("client disconnected mid-run: task=%s", req.TaskID)
				return
			case <-time.After(s.stepDelay):
			}
		} else if ctx.Err() != nil {
			s.logger.Info("client disconnected mid-run: task=%s", req.TaskID)
			return
		}

		data, err := runstream.MarshalStep(step)
		if err != nil {
			s.logger.Error("failed to encode step for task %s: %v", req.TaskID, err)
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n", data); err != nil {
			s.logger.Debug("stream write failed: %v", err)
			return
		}
		c.Writer.Flush()
	}
}
