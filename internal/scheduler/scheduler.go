package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"golang.org/x/sync/errgroup"

	"github.com/central-university-dev/go-digest-tracker/internal/aggregator"
)

// Scheduler запускает периодическое обновление всех настроенных дайджестов.
// Полностью неудачный цикл не повторяется раньше следующего тика и не
// останавливает процесс.
type Scheduler struct {
	scheduler   *gocron.Scheduler
	refresher   *Refresher
	budget      *aggregator.Budget
	logger      *slog.Logger
	interval    time.Duration
	concurrency int
	ctx         context.Context
}

func NewScheduler(
	ctx context.Context,
	refresher *Refresher,
	budget *aggregator.Budget,
	interval time.Duration,
	concurrency int,
	logger *slog.Logger,
) *Scheduler {
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Scheduler{
		scheduler:   gocron.NewScheduler(time.UTC),
		refresher:   refresher,
		budget:      budget,
		logger:      logger,
		interval:    interval,
		concurrency: concurrency,
		ctx:         ctx,
	}
}

func (s *Scheduler) Start() {
	s.logger.Info("Запуск планировщика дайджестов",
		"interval", s.interval.String(),
		"digests", len(s.refresher.Digests()),
	)

	_, err := s.scheduler.Every(s.interval).Do(func() {
		s.RefreshAll(s.ctx)
	})

	if err != nil {
		s.logger.Error("Ошибка при настройке планировщика",
			"error", err,
		)

		return
	}

	s.scheduler.StartAsync()

	// Первый проход сразу после старта: иначе до первого тика сервис
	// отвечал бы "дайджест ещё не готов".
	go s.RefreshAll(s.ctx)
}

func (s *Scheduler) Stop() {
	s.logger.Info("Остановка планировщика дайджестов")
	s.scheduler.Stop()
}

// RefreshAll выполняет один цикл обновления всех дайджестов с ограничением
// параллелизма. Бюджет запросов восполняется в начале цикла.
func (s *Scheduler) RefreshAll(ctx context.Context) {
	if ctx.Err() != nil {
		s.logger.Info("Цикл обновления пропущен: контекст завершён")
		return
	}

	started := time.Now()

	s.budget.Reset()

	digests := s.refresher.Digests()

	s.logger.Info("Запуск цикла обновления дайджестов",
		"digests", len(digests),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)

	for _, digest := range digests {
		group.Go(func() error {
			if _, err := s.refresher.Refresh(groupCtx, digest.ID); err != nil {
				s.logger.Error("Ошибка при обновлении дайджеста",
					"digest", digest.ID,
					"error", err,
				)
			}

			return nil
		})
	}

	_ = group.Wait()

	s.logger.Info("Цикл обновления дайджестов завершён",
		"digests", len(digests),
		"budgetRemaining", s.budget.Remaining(),
		"duration", time.Since(started).String(),
	)
}
