// CacheService — LRU-кэш метаданных материалов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/edustore/material-module/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш метаданных.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша метаданных.",
	})
)

// CacheService — LRU-кэш метаданных материалов с автоматическим TTL.
// Каждый экземпляр Material Module имеет собственный in-memory кэш.
type CacheService struct {
	cache *expirable.LRU[string, *model.Material]
}

// NewCacheService создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	cache := expirable.NewLRU[string, *model.Material](maxSize, nil, ttl)
	return &CacheService{cache: cache}
}

// Get возвращает материал из кэша по id.
// Возвращает (материал, true) при hit или (nil, false) при miss.
// Обновляет Prometheus-метрики hit/miss.
func (c *CacheService) Get(id string) (*model.Material, bool) {
	val, ok := c.cache.Get(id)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет материал в кэше.
func (c *CacheService) Set(id string, m *model.Material) {
	c.cache.Add(id, m)
}

// Delete удаляет материал из кэша (инвалидация при обновлении/удалении).
func (c *CacheService) Delete(id string) {
	c.cache.Remove(id)
}
