package errors

import (
	"fmt"
	"time"
)

// ErrRateLimited возникает, когда вышестоящий API сообщил об исчерпании квоты
// или локальный бюджет запросов на цикл исчерпан.
type ErrRateLimited struct {
	RetryAfter time.Duration
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("превышен лимит запросов к API, повтор через %s", e.RetryAfter)
}

func (e *ErrRateLimited) Is(target error) bool {
	_, ok := target.(*ErrRateLimited)
	return ok
}

// ErrTransient — временная ошибка сети или вышестоящего сервиса.
type ErrTransient struct {
	Cause error
}

func (e *ErrTransient) Error() string {
	return fmt.Sprintf("временная ошибка при запросе: %v", e.Cause)
}

func (e *ErrTransient) Is(target error) bool {
	_, ok := target.(*ErrTransient)
	return ok
}

func (e *ErrTransient) Unwrap() error {
	return e.Cause
}

// ErrPermanent — постоянная ошибка: ресурс не найден или доступ запрещён.
// Повтор в рамках цикла не выполняется.
type ErrPermanent struct {
	Cause error
}

func (e *ErrPermanent) Error() string {
	return fmt.Sprintf("постоянная ошибка при запросе: %v", e.Cause)
}

func (e *ErrPermanent) Is(target error) bool {
	_, ok := target.(*ErrPermanent)
	return ok
}

func (e *ErrPermanent) Unwrap() error {
	return e.Cause
}

type ErrConfiguration struct {
	Reason string
}

func (e *ErrConfiguration) Error() string {
	return "некорректная конфигурация: " + e.Reason
}

func (e *ErrConfiguration) Is(target error) bool {
	_, ok := target.(*ErrConfiguration)
	return ok
}

type ErrDigestNotFound struct {
	ID string
}

func (e *ErrDigestNotFound) Error() string {
	return "дайджест не найден: " + e.ID
}

func (e *ErrDigestNotFound) Is(target error) bool {
	_, ok := target.(*ErrDigestNotFound)
	return ok
}

// ErrDigestNotReady возникает, когда дайджест известен, но первое обновление
// ещё не завершилось.
type ErrDigestNotReady struct {
	ID string
}

func (e *ErrDigestNotReady) Error() string {
	return "дайджест ещё не готов: " + e.ID
}

func (e *ErrDigestNotReady) Is(target error) bool {
	_, ok := target.(*ErrDigestNotReady)
	return ok
}

type ErrInvalidURL struct {
	URL string
}

func (e *ErrInvalidURL) Error() string {
	return "неверный формат URL: " + e.URL
}

func (e *ErrInvalidURL) Is(target error) bool {
	_, ok := target.(*ErrInvalidURL)
	return ok
}

type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error: %d", e.StatusCode)
}
