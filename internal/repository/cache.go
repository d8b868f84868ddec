package repository

import (
	"context"
	"fmt"
	"time"

	"valuation-workers/internal/common/database"
	"valuation-workers/internal/common/errors"
	"valuation-workers/internal/common/logger"
	"valuation-workers/internal/common/metrics"
	"valuation-workers/internal/models"
	"valuation-workers/internal/valuation"
)

const cacheKeyPrefix = "valuation:"

// CachedRepository reads through Redis before hitting the wrapped repository. Cache failures
// are logged and the read falls back to the source. Not-found and empty answers are not cached.
type CachedRepository struct {
	next   valuation.PropertyRepository
	cache  *database.RedisClient
	ttl    time.Duration
	logger logger.Logger
}

var _ valuation.PropertyRepository = (*CachedRepository)(nil)

func NewCachedRepository(next valuation.PropertyRepository, cache *database.RedisClient, ttl time.Duration, log logger.Logger) *CachedRepository {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &CachedRepository{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"repository": "redis-cache"}),
	}
}

func propertyKey(id string) string {
	return cacheKeyPrefix + "property:" + id
}

func comparablesKey(id string, limit int) string {
	if limit < 0 {
		limit = 0
	}
	return fmt.Sprintf("%scomparables:%s:%d", cacheKeyPrefix, id, limit)
}

func (r *CachedRepository) GetProperty(ctx context.Context, id string) (*models.PropertyRecord, error) {
	key := propertyKey(id)

	var cached models.PropertyRecord
	if r.lookup(ctx, "property", key, &cached) {
		return &cached, nil
	}

	p, err := r.next.GetProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, key, p)
	return p, nil
}

func (r *CachedRepository) GetComparables(ctx context.Context, id string, limit int) ([]models.ComparableSale, error) {
	key := comparablesKey(id, limit)

	var cached []models.ComparableSale
	if r.lookup(ctx, "comparables", key, &cached) {
		return cached, nil
	}

	sales, err := r.next.GetComparables(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	r.store(ctx, key, sales)
	return sales, nil
}

// Invalidate drops the cached property. Cached comparables expire with the TTL.
func (r *CachedRepository) Invalidate(ctx context.Context, id string) error {
	if err := r.cache.Del(ctx, propertyKey(id)); err != nil {
		return errors.NewCacheOperationFailedError("del", err)
	}
	return nil
}

func (r *CachedRepository) lookup(ctx context.Context, kind, key string, dst interface{}) bool {
	hit, err := r.cache.GetJSON(ctx, key, dst)
	switch {
	case err != nil:
		metrics.RepositoryCacheLookups.WithLabelValues(kind, "error").Inc()
		r.logger.Warn("cache read failed", map[string]interface{}{
			"key":   key,
			"error": errors.NewCacheOperationFailedError("get", err).Error(),
		})
		return false
	case hit:
		metrics.RepositoryCacheLookups.WithLabelValues(kind, "hit").Inc()
		return true
	default:
		metrics.RepositoryCacheLookups.WithLabelValues(kind, "miss").Inc()
		return false
	}
}

func (r *CachedRepository) store(ctx context.Context, key string, value interface{}) {
	if err := r.cache.SetJSON(ctx, key, value, r.ttl); err != nil {
		r.logger.Warn("cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}
