// Package httpapi serves the read and scheduling surface for collaborators:
// job submission and inspection, the merge log, and entity detail views.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/registry/internal/db"
	"horse.fit/registry/internal/globaltime"
	"horse.fit/registry/internal/queue"
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	pool   *db.Pool
	store  queue.Store
	logger zerolog.Logger
	opts   Options
}

func NewServer(pool *db.Pool, store queue.Store, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8080
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		pool:   pool,
		store:  store,
		logger: logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil || s.store == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.GET("/healthz", s.handleHealth)

	api := e.Group("/api/v1")
	api.GET("/jobs", s.handleListJobs)
	api.POST("/jobs", s.handleCreateJob)
	api.GET("/jobs/:job_id", s.handleJobDetail)
	api.POST("/jobs/:job_id/cancel", s.handleCancelJob)
	api.GET("/merge-log", s.handleMergeLog)
	api.GET("/entities", s.handleListEntities)
	api.GET("/entities/:entity_id", s.handleEntityDetail)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("registry api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("registry api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "registry",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleMergeLog(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), 100, 1, 500)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	var entityID *int64
	if raw := strings.TrimSpace(c.QueryParam("entity_id")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			return failValidation(c, map[string]string{"entity_id": "must be a positive integer"})
		}
		entityID = &parsed
	}

	items, err := s.pool.ListMergeLog(c.Request().Context(), entityID, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query merge log failed")
		return internalError(c, "Failed to load merge log")
	}

	return success(c, map[string]any{
		"items": items,
		"limit": limit,
	})
}

func (s *Server) handleListEntities(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), 100, 1, 500)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	items, err := s.pool.ListEntities(c.Request().Context(), strings.TrimSpace(c.QueryParam("q")), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query entities failed")
		return internalError(c, "Failed to load entities")
	}

	return success(c, map[string]any{
		"items": items,
		"limit": limit,
	})
}

func (s *Server) handleEntityDetail(c echo.Context) error {
	entityID, err := strconv.ParseInt(strings.TrimSpace(c.Param("entity_id")), 10, 64)
	if err != nil || entityID <= 0 {
		return failValidation(c, map[string]string{"entity_id": "must be a positive integer"})
	}

	detail, err := s.pool.GetEntityDetail(c.Request().Context(), entityID)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return failNotFound(c, "Entity not found")
		}
		s.logger.Error().Err(err).Int64("entity_id", entityID).Msg("query entity detail failed")
		return internalError(c, "Failed to load entity detail")
	}

	return success(c, detail)
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
