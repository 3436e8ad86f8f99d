package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	domainerrors "github.com/central-university-dev/go-digest-tracker/internal/domain/errors"
	"github.com/central-university-dev/go-digest-tracker/internal/domain/models"
	"github.com/central-university-dev/go-digest-tracker/internal/render"
)

type Refresher interface {
	Refresh(ctx context.Context, id string) (*models.DigestAggregate, error)
	Config(id string) (models.DigestConfig, bool)
	Digests() []models.DigestConfig
}

type DigestCache interface {
	Get(id string) (*models.DigestAggregate, bool)
}

type RateLimitSource interface {
	RateLimitRemaining() int64
}

type DigestHandler struct {
	refresher       Refresher
	cache           DigestCache
	renderer        *render.Renderer
	rateLimit       RateLimitSource
	refreshInterval time.Duration
	refreshTimeout  time.Duration
	logger          *slog.Logger
}

func NewDigestHandler(
	refresher Refresher,
	cache DigestCache,
	renderer *render.Renderer,
	rateLimit RateLimitSource,
	refreshInterval time.Duration,
	refreshTimeout time.Duration,
	logger *slog.Logger,
) *DigestHandler {
	return &DigestHandler{
		refresher:       refresher,
		cache:           cache,
		renderer:        renderer,
		rateLimit:       rateLimit,
		refreshInterval: refreshInterval,
		refreshTimeout:  refreshTimeout,
		logger:          logger,
	}
}

func (h *DigestHandler) Index(w http.ResponseWriter, _ *http.Request) {
	digests := h.refresher.Digests()

	entries := make([]render.IndexEntry, 0, len(digests))

	for _, digest := range digests {
		entry := render.IndexEntry{
			ID:    digest.ID,
			Title: digest.Title,
		}

		if aggregate, ok := h.cache.Get(digest.ID); ok {
			entry.HasData = true
			entry.GeneratedAt = aggregate.GeneratedAt
			entry.EventCount = len(aggregate.Events)
		}

		entries = append(entries, entry)
	}

	page := render.IndexPage{
		Digests:            entries,
		RateLimitRemaining: h.rateLimit.RateLimitRemaining(),
	}

	var buf bytes.Buffer
	if err := h.renderer.RenderIndex(&buf, page); err != nil {
		h.logger.Error("Ошибка при рендеринге главной страницы",
			"error", err,
		)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// Digest отдаёт отрендеренный дайджест из кэша. Неполный агрегат (с набором
// неудач) отдаётся как обычная страница с предупреждением, а не как ошибка.
func (h *DigestHandler) Digest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "digest")

	cfg, ok := h.refresher.Config(id)
	if !ok {
		http.Error(w, "digest not found", http.StatusNotFound)
		return
	}

	var (
		aggregate *models.DigestAggregate
		found     bool
	)

	if wantsRefresh(r) {
		ctx, cancel := context.WithTimeout(r.Context(), h.refreshTimeout)
		defer cancel()

		refreshed, err := h.refresher.Refresh(ctx, id)
		if err == nil {
			aggregate, found = refreshed, true
		}
	} else {
		aggregate, found = h.cache.Get(id)
	}

	if !found {
		// Первое обновление ещё не завершилось: детерминированный ответ
		// "зайдите позже", а не пустая страница.
		w.Header().Set("Retry-After", strconv.Itoa(int(h.refreshInterval.Seconds())))
		http.Error(w, "digest not ready yet, retry later", http.StatusServiceUnavailable)

		return
	}

	if raw := r.URL.Query().Get("since"); raw != "" {
		window, err := parseSinceWindow(raw)
		if err != nil {
			http.Error(w, "invalid since parameter", http.StatusBadRequest)
			return
		}

		cutoff := time.Now().UTC().Truncate(24 * time.Hour).Add(-window)
		aggregate = filterSince(aggregate, cutoff)
	}

	var buf bytes.Buffer
	if err := h.renderer.RenderDigest(&buf, cfg.Title, aggregate); err != nil {
		h.logger.Error("Ошибка при рендеринге дайджеста",
			"digest", id,
			"error", err,
		)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Last-Modified", aggregate.GeneratedAt.UTC().Format(http.TimeFormat))
	w.Header().Set("Cache-Control", "max-age="+strconv.Itoa(maxAgeSeconds(aggregate.GeneratedAt, h.refreshInterval)))

	_, _ = buf.WriteTo(w)
}

func (h *DigestHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "digest")

	ctx, cancel := context.WithTimeout(r.Context(), h.refreshTimeout)
	defer cancel()

	aggregate, err := h.refresher.Refresh(ctx, id)
	if err != nil {
		if errors.Is(err, &domainerrors.ErrDigestNotFound{}) {
			http.Error(w, "digest not found", http.StatusNotFound)
			return
		}

		// Обновление запущено, но результата ещё нет.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"digest": id,
			"status": "refreshing",
		})

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"digest":      id,
		"status":      "ok",
		"generatedAt": aggregate.GeneratedAt.UTC().Format(time.RFC3339),
	})
}

// parseSinceWindow разбирает значение параметра since: "7d", "2w" либо
// длительность в формате Go ("48h").
func parseSinceWindow(raw string) (time.Duration, error) {
	if n := len(raw); n > 1 && (raw[n-1] == 'd' || raw[n-1] == 'w') {
		if count, err := strconv.Atoi(raw[:n-1]); err == nil && count > 0 {
			days := count
			if raw[n-1] == 'w' {
				days *= 7
			}

			return time.Duration(days) * 24 * time.Hour, nil
		}
	}

	window, err := time.ParseDuration(raw)
	if err != nil || window <= 0 {
		return 0, fmt.Errorf("некорректное значение since: %q", raw)
	}

	return window, nil
}

// filterSince возвращает копию агрегата только с событиями позже cutoff.
// Фильтр действует лишь на отображение: кэш хранит полный агрегат.
func filterSince(aggregate *models.DigestAggregate, cutoff time.Time) *models.DigestAggregate {
	filtered := aggregate.Clone()

	events := filtered.Events[:0]

	for _, event := range filtered.Events {
		if event.Timestamp.After(cutoff) {
			events = append(events, event)
		}
	}

	filtered.Events = events

	return filtered
}

func wantsRefresh(r *http.Request) bool {
	switch r.URL.Query().Get("refresh") {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func maxAgeSeconds(generatedAt time.Time, interval time.Duration) int {
	remaining := interval - time.Since(generatedAt)
	if remaining < 0 {
		return 0
	}

	return int(remaining.Seconds())
}
