// cache.go — LRU-кэш работ студентов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/submission-portal/internal/domain/model"
)

// SubmissionCache — кэш работ по ID студента.
// Кэш локален для экземпляра; инвалидируется при каждой записи.
// Хранит и отдаёт копии, чтобы вызывающий код не изменял кэшированные записи.
//
// Каждая инвалидация увеличивает поколение студента. Чтение из хранилища
// кладётся в кэш, только если поколение не изменилось с начала чтения:
// иначе запись, прочитанная до параллельного изменения, пережила бы его.
type SubmissionCache struct {
	cache *expirable.LRU[string, *model.Submission]

	mu sync.Mutex
	// generations — счётчик инвалидаций по студенту; растёт монотонно
	generations map[string]uint64
}

// NewSubmissionCache создаёт кэш на maxSize записей с временем жизни ttl.
func NewSubmissionCache(maxSize int, ttl time.Duration) *SubmissionCache {
	return &SubmissionCache{
		cache:       expirable.NewLRU[string, *model.Submission](maxSize, nil, ttl),
		generations: make(map[string]uint64),
	}
}

// Get возвращает работу студента из кэша.
func (c *SubmissionCache) Get(studentID string) (*model.Submission, bool) {
	val, ok := c.cache.Get(studentID)
	if ok {
		cacheHitsTotal.Inc()
		return val.Clone(), true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Generation возвращает текущее поколение студента.
// Снимается до чтения из хранилища и передаётся в SetIfCurrent.
func (c *SubmissionCache) Generation(studentID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[studentID]
}

// SetIfCurrent кладёт запись в кэш, если с момента снятия gen не было
// инвалидаций. Возвращает false, если запись устарела и не сохранена.
func (c *SubmissionCache) SetIfCurrent(studentID string, gen uint64, s *model.Submission) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generations[studentID] != gen {
		cacheStaleSkipsTotal.Inc()
		return false
	}
	c.cache.Add(studentID, s.Clone())
	return true
}

// Delete инвалидирует запись студента и увеличивает его поколение.
func (c *SubmissionCache) Delete(studentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generations[studentID]++
	c.cache.Remove(studentID)
}

// Len возвращает количество записей в кэше.
func (c *SubmissionCache) Len() int {
	return c.cache.Len()
}
