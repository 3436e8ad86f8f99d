package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/central-university-dev/go-digest-tracker/internal/common/metrics"
	domainerrors "github.com/central-university-dev/go-digest-tracker/internal/domain/errors"
	"github.com/central-university-dev/go-digest-tracker/internal/domain/models"
)

type DigestAggregator interface {
	Aggregate(ctx context.Context, cfg models.DigestConfig) *models.DigestAggregate
}

type DigestCache interface {
	Get(id string) (*models.DigestAggregate, bool)
	Put(id string, aggregate *models.DigestAggregate)
	IsStale(id string, maxAge time.Duration) bool
}

// AggregateStore — необязательная персистентность агрегатов (Redis).
type AggregateStore interface {
	SaveAggregate(ctx context.Context, aggregate *models.DigestAggregate)
}

// Refresher владеет дисциплиной "не более одного обновления на дайджест":
// конкурентные запросы на обновление одного идентификатора слипаются в одну
// агрегацию, все ожидающие получают её результат.
type Refresher struct {
	rootCtx    context.Context
	aggregator DigestAggregator
	cache      DigestCache
	store      AggregateStore
	digests    map[string]models.DigestConfig
	group      singleflight.Group
	logger     *slog.Logger
}

// NewRefresher принимает корневой контекст процесса: запущенные обновления
// живут в нём, а не в контексте инициатора, и прерываются только при
// остановке сервиса.
func NewRefresher(
	ctx context.Context,
	digestAggregator DigestAggregator,
	cache DigestCache,
	store AggregateStore,
	digests []models.DigestConfig,
	logger *slog.Logger,
) *Refresher {
	byID := make(map[string]models.DigestConfig, len(digests))
	for _, digest := range digests {
		byID[digest.ID] = digest
	}

	return &Refresher{
		rootCtx:    ctx,
		aggregator: digestAggregator,
		cache:      cache,
		store:      store,
		digests:    byID,
		logger:     logger,
	}
}

// Digests возвращает конфигурации дайджестов в стабильном порядке.
func (r *Refresher) Digests() []models.DigestConfig {
	digests := make([]models.DigestConfig, 0, len(r.digests))
	for _, digest := range r.digests {
		digests = append(digests, digest)
	}

	sort.Slice(digests, func(i, j int) bool {
		return digests[i].ID < digests[j].ID
	})

	return digests
}

func (r *Refresher) Config(id string) (models.DigestConfig, bool) {
	cfg, ok := r.digests[id]
	return cfg, ok
}

// Refresh обновляет дайджест, слипая конкурентные вызовы. Само обновление
// выполняется в корневом контексте процесса: инициатор, не дождавшийся
// результата, получает последний сохранённый агрегат, а обновление
// продолжается для остальных ожидающих.
func (r *Refresher) Refresh(ctx context.Context, id string) (*models.DigestAggregate, error) {
	cfg, ok := r.digests[id]
	if !ok {
		return nil, &domainerrors.ErrDigestNotFound{ID: id}
	}

	ch := r.group.DoChan(id, func() (interface{}, error) {
		return r.runRefresh(r.rootCtx, cfg)
	})

	select {
	case result := <-ch:
		if result.Err != nil {
			return r.fallback(id, result.Err)
		}

		return result.Val.(*models.DigestAggregate), nil
	case <-ctx.Done():
		return r.fallback(id, ctx.Err())
	}
}

func (r *Refresher) runRefresh(ctx context.Context, cfg models.DigestConfig) (*models.DigestAggregate, error) {
	started := time.Now()

	aggregate := r.aggregator.Aggregate(ctx, cfg)

	// Прерванное обновление выбрасывается: кэш сохраняет прежнее поколение.
	if ctx.Err() != nil {
		metrics.RefreshTotal.WithLabelValues(cfg.ID, "cancelled").Inc()
		return nil, ctx.Err()
	}

	r.cache.Put(cfg.ID, aggregate)

	if r.store != nil {
		r.store.SaveAggregate(ctx, aggregate)
	}

	status := "ok"

	switch {
	case len(aggregate.Failures) == len(cfg.Items):
		status = "failed"
	case len(aggregate.Failures) > 0:
		status = "partial"
	}

	metrics.RefreshTotal.WithLabelValues(cfg.ID, status).Inc()
	metrics.RefreshDuration.WithLabelValues(cfg.ID).Observe(time.Since(started).Seconds())

	return aggregate, nil
}

// fallback отдаёт последний известный агрегат, когда обновление не удалось
// или вызывающий не дождался. Когда агрегата ещё нет, дайджест не готов.
func (r *Refresher) fallback(id string, cause error) (*models.DigestAggregate, error) {
	if aggregate, ok := r.cache.Get(id); ok {
		r.logger.Warn("Обновление дайджеста не завершилось, отдаём кэшированный агрегат",
			"digest", id,
			"error", cause,
		)

		return aggregate, nil
	}

	return nil, &domainerrors.ErrDigestNotReady{ID: id}
}
