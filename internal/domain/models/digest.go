package models

import (
	"time"
)

type ItemKind string

const (
	Repository  ItemKind = "repository"
	Issue       ItemKind = "issue"
	PullRequest ItemKind = "pull_request"
	Release     ItemKind = "release"
	Unknown     ItemKind = "unknown"
)

// Cursor — непрозрачный маркер позиции последнего просмотренного события.
// Его внутренняя структура известна только фетчеру.
type Cursor string

func (c Cursor) IsEmpty() bool {
	return c == ""
}

type WatchedItem struct {
	Kind   ItemKind `json:"kind"`
	URL    string   `json:"url"`
	Owner  string   `json:"owner"`
	Repo   string   `json:"repo"`
	Number int64    `json:"number,omitempty"`
}

type DigestConfig struct {
	ID       string
	Title    string
	Items    []WatchedItem
	MaxPages int
	LookBack time.Duration
}

type ActivityEvent struct {
	Item      WatchedItem `json:"item"`
	Timestamp time.Time   `json:"timestamp"`
	Author    string      `json:"author"`
	Summary   string      `json:"summary"`
	Permalink string      `json:"permalink"`
	EventType string      `json:"eventType"`
}

type ItemFailure struct {
	Item   WatchedItem `json:"item"`
	Reason string      `json:"reason"`
}

type DigestAggregate struct {
	ID          string          `json:"id"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Events      []ActivityEvent `json:"events"`
	Failures    []ItemFailure   `json:"failures"`
}

// Clone возвращает глубокую копию агрегата. Кэш отдаёт читателям только копии,
// чтобы фоновое обновление не было видно сквозь ранее выданные ссылки.
func (a *DigestAggregate) Clone() *DigestAggregate {
	if a == nil {
		return nil
	}

	clone := &DigestAggregate{
		ID:          a.ID,
		GeneratedAt: a.GeneratedAt,
	}

	if a.Events != nil {
		clone.Events = make([]ActivityEvent, len(a.Events))
		copy(clone.Events, a.Events)
	}

	if a.Failures != nil {
		clone.Failures = make([]ItemFailure, len(a.Failures))
		copy(clone.Failures, a.Failures)
	}

	return clone
}
