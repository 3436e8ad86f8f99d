package aggregator

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/central-university-dev/go-digest-tracker/internal/domain/errors"
)

// Budget — общий на процесс запас запросов к вышестоящему API на один цикл
// обновления. Когда запас исчерпан, новые запросы не выполняются, а помечаются
// как неудачные до следующего цикла. Limiter дополнительно сглаживает
// мгновенную нагрузку на API.
type Budget struct {
	limiter    *rate.Limiter
	remaining  atomic.Int64
	size       int64
	retryAfter time.Duration
}

func NewBudget(size int, perSecond float64, burst int, retryAfter time.Duration) *Budget {
	if size <= 0 {
		size = 1
	}

	if burst <= 0 {
		burst = 1
	}

	b := &Budget{
		limiter:    rate.NewLimiter(rate.Limit(perSecond), burst),
		size:       int64(size),
		retryAfter: retryAfter,
	}
	b.remaining.Store(b.size)

	return b
}

// Acquire резервирует один запрос. Возвращает ErrRateLimited, когда запас
// на цикл исчерпан, либо ErrTransient, если ожидание лимитера прервано.
func (b *Budget) Acquire(ctx context.Context) error {
	if b.remaining.Add(-1) < 0 {
		return &errors.ErrRateLimited{RetryAfter: b.retryAfter}
	}

	if err := b.limiter.Wait(ctx); err != nil {
		// Запрос так и не был выполнен — возвращаем единицу в запас.
		b.remaining.Add(1)

		return &errors.ErrTransient{Cause: err}
	}

	return nil
}

// Exhaust обнуляет запас до конца цикла. Вызывается, когда сам API сообщил
// об исчерпании квоты: дальнейшие запросы в этом цикле бессмысленны.
func (b *Budget) Exhaust() {
	b.remaining.Store(0)
}

// Reset восполняет запас в начале нового цикла обновления.
func (b *Budget) Reset() {
	b.remaining.Store(b.size)
}

func (b *Budget) Remaining() int64 {
	remaining := b.remaining.Load()
	if remaining < 0 {
		return 0
	}

	return remaining
}
