package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/central-university-dev/go-digest-tracker/internal/common/middleware"
	"github.com/central-university-dev/go-digest-tracker/internal/config"
)

// Server отдаёт отрендеренные дайджесты по HTTP. Запрос никогда не ждёт
// вышестоящий API: данные берутся из кэша, обновление идёт в фоне.
type Server struct {
	server *http.Server
	logger *slog.Logger
	port   int
}

func NewServer(
	ctx context.Context,
	cfg *config.Config,
	handler *DigestHandler,
	logger *slog.Logger,
) *Server {
	router := chi.NewRouter()

	rateLimiter := middleware.NewRateLimiterMiddleware(ctx, cfg.RateLimitRequests, cfg.RateLimitWindow, logger)

	router.Use(requestLogger(logger))
	router.Use(middleware.Metrics)
	router.Use(rateLimiter.Middleware)

	router.Get("/", handler.Index)
	router.Get("/{digest}", handler.Digest)
	router.Post("/{digest}/refresh", handler.Refresh)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return &Server{
		server: server,
		logger: logger,
		port:   cfg.ServerPort,
	}
}

func (s *Server) Start() error {
	s.logger.Info("Запуск HTTP сервера дайджестов",
		"port", s.port,
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ошибка запуска HTTP сервера: %w", err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			logger.Info("HTTP запрос",
				"method", r.Method,
				"path", r.URL.Path,
				"duration", time.Since(start).String(),
			)
		})
	}
}
