package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/central-university-dev/go-digest-tracker/internal/domain/models"
)

const (
	aggregateKeyPattern = "digest:aggregate:%s"
	cursorKeyPattern    = "digest:cursor:%s"
)

// RedisDigestStore — необязательный слой персистентности поверх кэша в
// памяти: агрегаты и курсоры переживают рестарт процесса. Все ошибки Redis
// логируются и не считаются фатальными.
type RedisDigestStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisDigestStore(
	ctx context.Context,
	redisURL, password string,
	db int,
	ttl time.Duration,
	logger *slog.Logger,
) (*RedisDigestStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisURL,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ошибка при подключении к Redis: %w", err)
	}

	logger.Info("Соединение с Redis для хранилища дайджестов успешно установлено")

	return &RedisDigestStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func (s *RedisDigestStore) SaveAggregate(ctx context.Context, aggregate *models.DigestAggregate) {
	key := fmt.Sprintf(aggregateKeyPattern, aggregate.ID)

	data, err := json.Marshal(aggregate)
	if err != nil {
		s.logger.Error("Ошибка при сериализации агрегата для Redis",
			"digest", aggregate.ID,
			"error", err,
		)

		return
	}

	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.logger.Error("Ошибка при сохранении агрегата в Redis",
			"digest", aggregate.ID,
			"error", err,
		)
	}
}

func (s *RedisDigestStore) LoadAggregate(ctx context.Context, id string) (*models.DigestAggregate, error) {
	key := fmt.Sprintf(aggregateKeyPattern, id)

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("ошибка при получении агрегата из Redis: %w", err)
	}

	var aggregate models.DigestAggregate
	if err := json.Unmarshal(data, &aggregate); err != nil {
		return nil, fmt.Errorf("ошибка при десериализации агрегата из Redis: %w", err)
	}

	return &aggregate, nil
}

// WarmUp загружает сохранённые агрегаты в кэш в памяти, чтобы сервис после
// рестарта сразу отдавал данные, не дожидаясь первого цикла обновления.
func (s *RedisDigestStore) WarmUp(ctx context.Context, ids []string, memory *MemoryDigestCache) int {
	loaded := 0

	for _, id := range ids {
		aggregate, err := s.LoadAggregate(ctx, id)
		if err != nil {
			s.logger.Warn("Не удалось загрузить агрегат из Redis",
				"digest", id,
				"error", err,
			)

			continue
		}

		if aggregate == nil {
			continue
		}

		memory.Put(id, aggregate)
		loaded++
	}

	s.logger.Info("Кэш дайджестов прогрет из Redis",
		"loaded", loaded,
		"total", len(ids),
	)

	return loaded
}

func (s *RedisDigestStore) GetCursor(ctx context.Context, itemURL string) models.Cursor {
	key := fmt.Sprintf(cursorKeyPattern, itemURL)

	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("Ошибка при получении курсора из Redis",
				"item", itemURL,
				"error", err,
			)
		}

		return ""
	}

	return models.Cursor(value)
}

func (s *RedisDigestStore) SetCursor(ctx context.Context, itemURL string, cursor models.Cursor) {
	key := fmt.Sprintf(cursorKeyPattern, itemURL)

	if err := s.client.Set(ctx, key, string(cursor), s.ttl).Err(); err != nil {
		s.logger.Warn("Ошибка при сохранении курсора в Redis",
			"item", itemURL,
			"error", err,
		)
	}
}

func (s *RedisDigestStore) Close() error {
	return s.client.Close()
}
