package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/central-university-dev/go-digest-tracker/internal/aggregator"
	"github.com/central-university-dev/go-digest-tracker/internal/cache"
	"github.com/central-university-dev/go-digest-tracker/internal/clients"
	"github.com/central-university-dev/go-digest-tracker/internal/common"
	"github.com/central-university-dev/go-digest-tracker/internal/common/metrics"
	"github.com/central-university-dev/go-digest-tracker/internal/config"
	"github.com/central-university-dev/go-digest-tracker/internal/fetcher"
	"github.com/central-university-dev/go-digest-tracker/internal/render"
	"github.com/central-university-dev/go-digest-tracker/internal/scheduler"
	"github.com/central-university-dev/go-digest-tracker/internal/server"
	"github.com/central-university-dev/go-digest-tracker/pkg"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка запуска сервиса: %v\n", err)
		os.Exit(1)
	}
}

//nolint:funlen // Длина функции обусловлена последовательной инициализацией всех компонентов.
func run() error {
	cfg := config.LoadConfig()

	appLogger := pkg.NewLogger(os.Stdout)
	if cfg.LogLevel == "debug" {
		appLogger = pkg.NewDebugLogger(os.Stdout)
	}

	token, err := cfg.ResolveGitHubToken()
	if err != nil {
		appLogger.Error("Ошибка при разрешении токена GitHub",
			"error", err,
		)

		return err
	}

	analyzer := common.NewItemAnalyzer()

	digests, err := config.LoadDigests(cfg, analyzer)
	if err != nil {
		appLogger.Error("Ошибка при загрузке конфигурации дайджестов",
			"error", err,
		)

		return err
	}

	appLogger.Info("Конфигурация дайджестов загружена",
		"digests", len(digests),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	memoryCache := cache.NewMemoryDigestCache()

	var (
		cursors        aggregator.CursorStore = cache.NewMemoryCursorStore()
		aggregateStore scheduler.AggregateStore
	)

	if cfg.RedisURL != "" {
		redisStore, redisErr := cache.NewRedisDigestStore(
			ctx, cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB, cfg.RedisCacheTTL, appLogger,
		)
		if redisErr != nil {
			appLogger.Error("Ошибка при подключении к Redis",
				"error", redisErr,
			)

			appLogger.Warn("Продолжаем без персистентности: кэш только в памяти")
		} else {
			defer redisStore.Close()

			ids := make([]string, 0, len(digests))
			for _, digest := range digests {
				ids = append(ids, digest.ID)
			}

			redisStore.WarmUp(ctx, ids, memoryCache)

			cursors = redisStore
			aggregateStore = redisStore
		}
	}

	githubClient := clients.NewGitHubClient(token, "", cfg, appLogger)
	itemFetcher := fetcher.NewItemFetcher(githubClient, appLogger)

	budget := aggregator.NewBudget(
		cfg.RateLimitBudget,
		float64(cfg.GlobalConcurrency),
		cfg.GlobalConcurrency,
		cfg.RefreshInterval,
	)

	digestAggregator := aggregator.NewAggregator(itemFetcher, cursors, budget, cfg.DigestConcurrency, appLogger)
	refresher := scheduler.NewRefresher(ctx, digestAggregator, memoryCache, aggregateStore, digests, appLogger)
	digestScheduler := scheduler.NewScheduler(
		ctx, refresher, budget, cfg.RefreshInterval, cfg.GlobalConcurrency, appLogger,
	)

	renderer, err := render.NewRenderer()
	if err != nil {
		appLogger.Error("Ошибка при инициализации рендерера",
			"error", err,
		)

		return err
	}

	handler := server.NewDigestHandler(
		refresher, memoryCache, renderer, githubClient,
		cfg.RefreshInterval, cfg.RefreshTimeout, appLogger,
	)
	httpServer := server.NewServer(ctx, cfg, handler, appLogger)

	metricsServer := metrics.NewMetricsServer(cfg.MetricsPort, appLogger)

	go func() {
		if err := metricsServer.Start(ctx); err != nil {
			appLogger.Error("Ошибка сервера метрик",
				"error", err,
			)
		}
	}()

	digestScheduler.Start()

	stopCh := make(chan struct{})
	startHTTPServer(httpServer, stopCh, appLogger)

	gracefulShutdown(httpServer, digestScheduler, cancel, stopCh, appLogger)

	return nil
}

func startHTTPServer(httpServer *server.Server, stopCh chan struct{}, appLogger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLogger.Info("Получен системный сигнал",
			"signal", sig.String(),
		)
		close(stopCh)
	}()

	go func() {
		if err := httpServer.Start(); err != nil {
			appLogger.Error("Ошибка при запуске HTTP сервера",
				"error", err,
			)

			select {
			case <-stopCh:
			default:
				close(stopCh)
			}
		}
	}()
}

func gracefulShutdown(
	httpServer *server.Server,
	digestScheduler *scheduler.Scheduler,
	cancel context.CancelFunc,
	stopCh <-chan struct{},
	appLogger *slog.Logger,
) {
	<-stopCh
	appLogger.Info("Получен сигнал завершения")

	digestScheduler.Stop()

	// Отмена корневого контекста прерывает все незавершённые выборки;
	// кэш при этом сохраняет агрегаты предыдущего поколения.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Ошибка при остановке HTTP сервера",
			"error", err,
		)
	}

	appLogger.Info("Сервер успешно остановлен")
}
