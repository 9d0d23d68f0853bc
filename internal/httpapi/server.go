package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"clipbatch/internal/api"
	"clipbatch/internal/batch"
	"clipbatch/internal/config"
	"clipbatch/internal/logging"
	"clipbatch/internal/queue"
)

// HeaderOwnerID carries the caller identity resolved by the fronting auth layer.
const HeaderOwnerID = "X-Owner-ID"

// Server wires the queue store and batch manager into an echo HTTP server.
type Server struct {
	cfg     *config.Config
	store   *queue.Store
	manager *batch.Manager
	logger  *slog.Logger
	echo    *echo.Echo
}

// NewServer constructs the HTTP API server and registers all routes.
func NewServer(cfg *config.Config, store *queue.Store, manager *batch.Manager, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		cfg:     cfg,
		store:   store,
		manager: manager,
		logger:  logging.NewComponentLogger(logger, "httpapi"),
		echo:    e,
	}

	e.GET("/health", s.handleHealth)

	jobs := e.Group("/api/jobs", s.requireToken, s.requireOwner)
	jobs.GET("", s.handleListJobs)
	jobs.POST("", s.handleCreateJob)
	jobs.GET("/stats", s.handleJobStats)
	jobs.GET("/:id", s.handleGetJob)
	jobs.DELETE("/:id", s.handleDeleteJob)
	jobs.POST("/:id/start", s.handleStartJob)
	jobs.POST("/:id/pause", s.handlePauseJob)
	jobs.POST("/:id/resume", s.handleResumeJob)
	jobs.POST("/:id/cancel", s.handleCancelJob)
	jobs.POST("/:id/retry-failed", s.handleRetryFailed)

	return s
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on the configured bind address and blocks until shutdown.
func (s *Server) Start() error {
	bind := s.cfg.Paths.APIBind
	s.logger.Info("http api listening", logging.String("bind", bind))
	if err := s.echo.Start(bind); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requireToken enforces the optional static bearer token from configuration.
func (s *Server) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := s.cfg.Paths.APIToken
		if token == "" {
			return next(c)
		}
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if bearer, ok := strings.CutPrefix(header, "Bearer "); ok && bearer == token {
			return next(c)
		}
		return c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "invalid or missing bearer token"})
	}
}

// requireOwner rejects API requests that do not identify a caller.
func (s *Server) requireOwner(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		owner := strings.TrimSpace(c.Request().Header.Get(HeaderOwnerID))
		if owner == "" {
			return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "missing " + HeaderOwnerID + " header"})
		}
		c.Set(ownerContextKey, owner)
		return next(c)
	}
}

const ownerContextKey = "owner_id"

func ownerFrom(c echo.Context) string {
	owner, _ := c.Get(ownerContextKey).(string)
	return owner
}
