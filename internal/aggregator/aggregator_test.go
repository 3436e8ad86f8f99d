package aggregator_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/central-university-dev/go-digest-tracker/internal/aggregator"
	"github.com/central-university-dev/go-digest-tracker/internal/cache"
	"github.com/central-university-dev/go-digest-tracker/internal/domain/errors"
	"github.com/central-university-dev/go-digest-tracker/internal/domain/models"
	"github.com/central-university-dev/go-digest-tracker/internal/fetcher"
	"github.com/central-university-dev/go-digest-tracker/pkg"
)

// stubFetcher отдаёт заранее заданные события либо ошибки по URL ресурса.
type stubFetcher struct {
	mu     sync.Mutex
	events map[string][]models.ActivityEvent
	errs   map[string]error
	calls  map[string]int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		events: make(map[string][]models.ActivityEvent),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (s *stubFetcher) Fetch(
	_ context.Context,
	item models.WatchedItem,
	since models.Cursor,
	_ fetcher.Options,
) ([]models.ActivityEvent, models.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[item.URL]++

	if err, ok := s.errs[item.URL]; ok {
		return nil, since, err
	}

	events := s.events[item.URL]

	cursor := since
	if len(events) > 0 {
		cursor = models.Cursor(events[0].Timestamp.UTC().Format(time.RFC3339Nano))
	}

	return events, cursor, nil
}

func watchedRepo(url string) models.WatchedItem {
	return models.WatchedItem{Kind: models.Repository, URL: url}
}

func event(item models.WatchedItem, ts time.Time, permalink string) models.ActivityEvent {
	return models.ActivityEvent{
		Item:      item,
		Timestamp: ts,
		Author:    "alice",
		Summary:   "Push",
		Permalink: permalink,
		EventType: "PushEvent",
	}
}

func newBudget(size int) *aggregator.Budget {
	return aggregator.NewBudget(size, 1000, size, time.Minute)
}

func digestConfig(items ...models.WatchedItem) models.DigestConfig {
	return models.DigestConfig{
		ID:       "team.html",
		Title:    "team",
		Items:    items,
		MaxPages: 10,
		LookBack: 168 * time.Hour,
	}
}

func TestAggregator_MergeDeterministic(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Second)
	itemA := watchedRepo("https://github.com/golang/go")
	itemB := watchedRepo("https://github.com/golang/tools")

	stub := newStubFetcher()
	stub.events[itemA.URL] = []models.ActivityEvent{
		event(itemA, now, itemA.URL+"/events#2"),
		event(itemA, now.Add(-time.Hour), itemA.URL+"/events#1"),
	}
	stub.events[itemB.URL] = []models.ActivityEvent{
		// Тот же момент времени, что и у события itemA: порядок решает permalink.
		event(itemB, now, itemB.URL+"/events#9"),
	}

	agg := aggregator.NewAggregator(stub, cache.NewMemoryCursorStore(), newBudget(10), 4, pkg.NewLogger(io.Discard))

	result := agg.Aggregate(context.Background(), digestConfig(itemA, itemB))
	require.NotNil(t, result)
	require.Len(t, result.Events, 3)
	assert.Empty(t, result.Failures)

	assert.Equal(t, itemA.URL+"/events#2", result.Events[0].Permalink)
	assert.Equal(t, itemB.URL+"/events#9", result.Events[1].Permalink)
	assert.Equal(t, itemA.URL+"/events#1", result.Events[2].Permalink)
}

func TestAggregator_Deduplicates(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	item := watchedRepo("https://github.com/golang/go")

	stub := newStubFetcher()
	stub.events[item.URL] = []models.ActivityEvent{
		event(item, now, item.URL+"/events#1"),
		event(item, now, item.URL+"/events#1"),
	}

	agg := aggregator.NewAggregator(stub, cache.NewMemoryCursorStore(), newBudget(10), 4, pkg.NewLogger(io.Discard))

	result := agg.Aggregate(context.Background(), digestConfig(item))
	require.Len(t, result.Events, 1)
}

func TestAggregator_PartialFailure(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	good := watchedRepo("https://github.com/golang/go")
	bad := watchedRepo("https://github.com/golang/tools")

	stub := newStubFetcher()
	stub.events[good.URL] = []models.ActivityEvent{event(good, now, good.URL+"/events#1")}
	stub.errs[bad.URL] = &errors.ErrTransient{}

	agg := aggregator.NewAggregator(stub, cache.NewMemoryCursorStore(), newBudget(10), 4, pkg.NewLogger(io.Discard))

	result := agg.Aggregate(context.Background(), digestConfig(good, bad))
	require.NotNil(t, result)
	require.Len(t, result.Events, 1)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, bad.URL, result.Failures[0].Item.URL)
	assert.NotEmpty(t, result.Failures[0].Reason)
}

func TestAggregator_AllItemsFail(t *testing.T) {
	t.Parallel()

	itemA := watchedRepo("https://github.com/golang/go")
	itemB := watchedRepo("https://github.com/golang/tools")

	stub := newStubFetcher()
	stub.errs[itemA.URL] = &errors.ErrTransient{}
	stub.errs[itemB.URL] = &errors.ErrPermanent{}

	agg := aggregator.NewAggregator(stub, cache.NewMemoryCursorStore(), newBudget(10), 4, pkg.NewLogger(io.Discard))

	result := agg.Aggregate(context.Background(), digestConfig(itemA, itemB))
	require.NotNil(t, result)
	assert.Empty(t, result.Events)
	assert.Len(t, result.Failures, 2)
	assert.False(t, result.GeneratedAt.IsZero())

	// Список неудач отсортирован по URL ресурса.
	assert.Equal(t, itemA.URL, result.Failures[0].Item.URL)
	assert.Equal(t, itemB.URL, result.Failures[1].Item.URL)
}

func TestAggregator_BudgetExhausted(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	items := []models.WatchedItem{
		watchedRepo("https://github.com/golang/go"),
		watchedRepo("https://github.com/golang/tools"),
		watchedRepo("https://github.com/golang/net"),
	}

	stub := newStubFetcher()
	for _, item := range items {
		stub.events[item.URL] = []models.ActivityEvent{event(item, now, item.URL+"/events#1")}
	}

	// Запаса хватает только на один ресурс, конкурентность 1 для
	// предсказуемого порядка.
	agg := aggregator.NewAggregator(stub, cache.NewMemoryCursorStore(), newBudget(1), 1, pkg.NewLogger(io.Discard))

	result := agg.Aggregate(context.Background(), digestConfig(items...))
	require.NotNil(t, result)
	assert.Len(t, result.Events, 1)
	require.Len(t, result.Failures, 2)

	for _, failure := range result.Failures {
		assert.Contains(t, failure.Reason, "лимит")
	}
}

func TestAggregator_UpstreamRateLimitDrainsBudget(t *testing.T) {
	t.Parallel()

	limited := watchedRepo("https://github.com/golang/go")

	stub := newStubFetcher()
	stub.errs[limited.URL] = &errors.ErrRateLimited{RetryAfter: time.Minute}

	budget := newBudget(10)
	agg := aggregator.NewAggregator(stub, cache.NewMemoryCursorStore(), budget, 1, pkg.NewLogger(io.Discard))

	result := agg.Aggregate(context.Background(), digestConfig(limited))
	require.Len(t, result.Failures, 1)
	assert.Equal(t, int64(0), budget.Remaining())
}

func TestAggregator_CursorAdvancesOnlyOnSuccess(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Second)
	good := watchedRepo("https://github.com/golang/go")
	bad := watchedRepo("https://github.com/golang/tools")

	cursors := cache.NewMemoryCursorStore()
	cursors.SetCursor(context.Background(), bad.URL, "2024-01-01T00:00:00Z")

	stub := newStubFetcher()
	stub.events[good.URL] = []models.ActivityEvent{event(good, now, good.URL+"/events#1")}
	stub.errs[bad.URL] = &errors.ErrTransient{}

	agg := aggregator.NewAggregator(stub, cursors, newBudget(10), 4, pkg.NewLogger(io.Discard))
	agg.Aggregate(context.Background(), digestConfig(good, bad))

	assert.Equal(t,
		models.Cursor(now.Format(time.RFC3339Nano)),
		cursors.GetCursor(context.Background(), good.URL),
	)
	assert.Equal(t,
		models.Cursor("2024-01-01T00:00:00Z"),
		cursors.GetCursor(context.Background(), bad.URL),
	)
}

func TestBudget(t *testing.T) {
	t.Parallel()

	budget := aggregator.NewBudget(2, 1000, 2, time.Minute)

	require.NoError(t, budget.Acquire(context.Background()))
	require.NoError(t, budget.Acquire(context.Background()))

	err := budget.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.ErrRateLimited{})

	var rateLimited *errors.ErrRateLimited
	require.ErrorAs(t, err, &rateLimited)
	assert.Equal(t, time.Minute, rateLimited.RetryAfter)

	budget.Reset()
	require.NoError(t, budget.Acquire(context.Background()))
	assert.Equal(t, int64(1), budget.Remaining())

	budget.Exhaust()
	assert.Equal(t, int64(0), budget.Remaining())
	require.Error(t, budget.Acquire(context.Background()))
}

func TestBudget_AcquireCancelledContext(t *testing.T) {
	t.Parallel()

	// Лимитер с нулевой скоростью никогда не пропустит запрос:
	// ожидание завершится только отменой контекста.
	budget := aggregator.NewBudget(3, 0, 1, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := budget.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.ErrTransient{})

	// Прерванное ожидание не тратит единицу запаса.
	assert.Equal(t, int64(3), budget.Remaining())
}
