package cache

import (
	"context"
	"sync"
	"time"

	"github.com/central-university-dev/go-digest-tracker/internal/domain/models"
)

// MemoryDigestCache хранит последний вычисленный агрегат по каждому
// дайджесту. Get никогда не блокируется на обновлении и отдаёт копию:
// читатель не может наблюдать агрегат, частично заменённый новым поколением.
type MemoryDigestCache struct {
	mu      sync.RWMutex
	entries map[string]*models.DigestAggregate
}

func NewMemoryDigestCache() *MemoryDigestCache {
	return &MemoryDigestCache{
		entries: make(map[string]*models.DigestAggregate),
	}
}

func (c *MemoryDigestCache) Get(id string) (*models.DigestAggregate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	aggregate, ok := c.entries[id]
	if !ok {
		return nil, false
	}

	return aggregate.Clone(), true
}

func (c *MemoryDigestCache) Put(id string, aggregate *models.DigestAggregate) {
	clone := aggregate.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[id] = clone
}

// IsStale сообщает, пора ли обновлять дайджест. Отсутствующий агрегат
// считается устаревшим.
func (c *MemoryDigestCache) IsStale(id string, maxAge time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	aggregate, ok := c.entries[id]
	if !ok {
		return true
	}

	return time.Since(aggregate.GeneratedAt) > maxAge
}

// MemoryCursorStore — хранилище курсоров в памяти. Используется, когда Redis
// не настроен: после рестарта курсоры теряются, и выборка ограничивается
// окном просмотра назад.
type MemoryCursorStore struct {
	mu      sync.RWMutex
	cursors map[string]models.Cursor
}

func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{
		cursors: make(map[string]models.Cursor),
	}
}

func (s *MemoryCursorStore) GetCursor(_ context.Context, itemURL string) models.Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cursors[itemURL]
}

func (s *MemoryCursorStore) SetCursor(_ context.Context, itemURL string, cursor models.Cursor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[itemURL] = cursor
}
