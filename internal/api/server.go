// Package api exposes the planner to collaborators over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"household-missions/internal/metrics"
	"household-missions/internal/service"
	"household-missions/internal/suggestion"
)

// Deps are the services the API serves.
type Deps struct {
	Tasks       *service.TaskService
	Progress    *service.ProgressService
	Families    *service.FamilyService
	Suggestions *suggestion.Generator
	Metrics     *metrics.Metrics
	Location    *time.Location
	Now         func() time.Time
	Logger      *slog.Logger
}

// Server is the planner HTTP server.
type Server struct {
	deps   Deps
	router *gin.Engine
	log    *slog.Logger
}

func NewServer(deps Deps) *Server {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	router := gin.New()
	s := &Server{deps: deps, router: router, log: deps.Logger}
	router.Use(gin.Recovery(), s.logRequests)

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	router.GET("/levels/:level", s.handleRequiredExp)

	tasks := router.Group("/tasks")
	{
		tasks.POST("", s.handleCreateTask)
		tasks.GET("/:id/occurs", s.handleOccurs)
		tasks.POST("/:id/occurrences/:date/complete", s.handleComplete)
		tasks.POST("/:id/occurrences/:date/skip", s.handleSkip)
		tasks.DELETE("/:id", s.handleDeleteSeries)
	}

	users := router.Group("/users/:uid")
	{
		users.GET("/agenda", s.handleAgenda)
		users.GET("/progress", s.handleProgress)
		users.PUT("/family", s.handleJoinFamily)
		users.POST("/suggestions", s.handleGenerate)
		users.GET("/suggestions", s.handlePending)
	}

	suggestions := router.Group("/suggestions/:id")
	{
		suggestions.POST("/accept", s.handleAccept)
		suggestions.POST("/decline", s.handleDecline)
	}

	return s
}

// Handler returns the routed engine.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) logRequests(c *gin.Context) {
	started := time.Now()
	c.Next()
	s.log.Debug("http request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.FullPath()),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("took", time.Since(started)))
}
