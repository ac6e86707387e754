// cache.go — LRU-кэш карточек с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/studyshare/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ss_cache_hits_total",
		Help: "Общее количество попаданий в кэш карточек.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ss_cache_misses_total",
		Help: "Общее количество промахов кэша карточек.",
	})
)

// CacheService — кэш карточек по ID.
// Хранит копии: изменение возвращённой карточки не влияет на кэш.
type CacheService struct {
	cache *expirable.LRU[string, model.CatalogRecord]
}

// NewCacheService создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	return &CacheService{cache: expirable.NewLRU[string, model.CatalogRecord](maxSize, nil, ttl)}
}

// Get возвращает копию карточки при hit.
func (c *CacheService) Get(id string) (*model.CatalogRecord, bool) {
	val, ok := c.cache.Get(id)
	if !ok {
		cacheMissesTotal.Inc()
		return nil, false
	}
	cacheHitsTotal.Inc()
	return &val, true
}

// Set добавляет или обновляет карточку.
func (c *CacheService) Set(rec *model.CatalogRecord) {
	c.cache.Add(rec.ID, *rec)
}

// Delete инвалидирует карточку.
func (c *CacheService) Delete(id string) {
	c.cache.Remove(id)
}

// Len возвращает количество карточек в кэше.
func (c *CacheService) Len() int {
	return c.cache.Len()
}
