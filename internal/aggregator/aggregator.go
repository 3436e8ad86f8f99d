package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/central-university-dev/go-digest-tracker/internal/common/metrics"
	domainerrors "github.com/central-university-dev/go-digest-tracker/internal/domain/errors"
	"github.com/central-university-dev/go-digest-tracker/internal/domain/models"
	"github.com/central-university-dev/go-digest-tracker/internal/fetcher"
)

type Fetcher interface {
	Fetch(
		ctx context.Context,
		item models.WatchedItem,
		since models.Cursor,
		opts fetcher.Options,
	) ([]models.ActivityEvent, models.Cursor, error)
}

// CursorStore хранит курсоры по URL отслеживаемого ресурса. Реализация
// вправе терять данные (память, Redis с TTL): пустой курсор означает выборку
// в пределах окна просмотра назад.
type CursorStore interface {
	GetCursor(ctx context.Context, itemURL string) models.Cursor
	SetCursor(ctx context.Context, itemURL string, cursor models.Cursor)
}

// Aggregator выполняет веерный опрос ресурсов одного дайджеста и сливает
// результаты в готовый к отображению агрегат.
type Aggregator struct {
	fetcher     Fetcher
	cursors     CursorStore
	budget      *Budget
	concurrency int
	logger      *slog.Logger
}

func NewAggregator(
	itemFetcher Fetcher,
	cursors CursorStore,
	budget *Budget,
	concurrency int,
	logger *slog.Logger,
) *Aggregator {
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Aggregator{
		fetcher:     itemFetcher,
		cursors:     cursors,
		budget:      budget,
		concurrency: concurrency,
		logger:      logger,
	}
}

type itemResult struct {
	item   models.WatchedItem
	events []models.ActivityEvent
	err    error
}

// Aggregate всегда возвращает агрегат: отказ части ресурсов (или даже всех)
// фиксируется в наборе неудач, но не отменяет результата цикла.
func (a *Aggregator) Aggregate(ctx context.Context, cfg models.DigestConfig) *models.DigestAggregate {
	started := time.Now()

	results := make([]itemResult, len(cfg.Items))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(a.concurrency)

	for i, item := range cfg.Items {
		group.Go(func() error {
			results[i] = a.fetchItem(groupCtx, item, cfg)
			return nil
		})
	}

	_ = group.Wait()

	aggregate := a.merge(cfg.ID, results)

	var cycleErr error

	for _, result := range results {
		if result.err != nil {
			cycleErr = multierr.Append(cycleErr, result.err)
		}
	}

	if cycleErr != nil {
		a.logger.Warn("Часть ресурсов дайджеста опросить не удалось",
			"digest", cfg.ID,
			"failed", len(aggregate.Failures),
			"total", len(cfg.Items),
			"error", cycleErr,
		)
	}

	a.logger.Info("Агрегация дайджеста завершена",
		"digest", cfg.ID,
		"events", len(aggregate.Events),
		"failures", len(aggregate.Failures),
		"duration", time.Since(started).String(),
	)

	metrics.DigestEvents.WithLabelValues(cfg.ID).Set(float64(len(aggregate.Events)))
	metrics.DigestFailedItems.WithLabelValues(cfg.ID).Set(float64(len(aggregate.Failures)))

	return aggregate
}

func (a *Aggregator) fetchItem(ctx context.Context, item models.WatchedItem, cfg models.DigestConfig) itemResult {
	if err := a.budget.Acquire(ctx); err != nil {
		if errors.Is(err, &domainerrors.ErrRateLimited{}) {
			metrics.BudgetExhaustedTotal.Inc()
		}

		return itemResult{item: item, err: err}
	}

	since := a.cursors.GetCursor(ctx, item.URL)

	started := time.Now()

	events, cursor, err := a.fetcher.Fetch(ctx, item, since, fetcher.Options{
		MaxPages: cfg.MaxPages,
		LookBack: cfg.LookBack,
	})

	metrics.FetchDuration.WithLabelValues(string(item.Kind)).Observe(time.Since(started).Seconds())

	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues(string(item.Kind), errorClass(err)).Inc()

		var rateLimited *domainerrors.ErrRateLimited
		if errors.As(err, &rateLimited) {
			a.budget.Exhaust()
		}

		return itemResult{item: item, err: err}
	}

	a.cursors.SetCursor(ctx, item.URL, cursor)

	return itemResult{item: item, events: events}
}

// merge сливает события всех ресурсов: дедупликация по паре
// (URL ресурса, permalink), сортировка по времени от новых к старым.
// Порядок детерминирован и не зависит от порядка завершения выборок.
func (a *Aggregator) merge(digestID string, results []itemResult) *models.DigestAggregate {
	type eventKey struct {
		itemURL   string
		permalink string
	}

	seen := make(map[eventKey]struct{})
	merged := make([]models.ActivityEvent, 0)
	failures := make([]models.ItemFailure, 0)

	for _, result := range results {
		if result.err != nil {
			failures = append(failures, models.ItemFailure{
				Item:   result.item,
				Reason: result.err.Error(),
			})

			continue
		}

		for _, event := range result.events {
			key := eventKey{itemURL: event.Item.URL, permalink: event.Permalink}
			if _, ok := seen[key]; ok {
				continue
			}

			seen[key] = struct{}{}

			merged = append(merged, event)
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].Timestamp.After(merged[j].Timestamp)
		}

		return merged[i].Permalink < merged[j].Permalink
	})

	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Item.URL < failures[j].Item.URL
	})

	return &models.DigestAggregate{
		ID:          digestID,
		GeneratedAt: time.Now(),
		Events:      merged,
		Failures:    failures,
	}
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, &domainerrors.ErrRateLimited{}):
		return "rate_limited"
	case errors.Is(err, &domainerrors.ErrPermanent{}):
		return "permanent"
	case errors.Is(err, &domainerrors.ErrTransient{}):
		return "transient"
	default:
		return "other"
	}
}
