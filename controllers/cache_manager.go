package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ingest-service/services"
)

const (
	ViewerCachePrefix = "product:viewer:"
	CacheVersionKey   = "product:viewer:version"
)

// CacheManager caches viewer payloads under versioned keys. Bumping the
// version orphans every cached payload at once; the per-product delete
// covers readers that raced the bump.
type CacheManager struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewCacheManager(rdb *redis.Client, ttl time.Duration) *CacheManager {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CacheManager{redis: rdb, ttl: ttl}
}

// GetViewer returns a cached viewer payload.
func (cm *CacheManager) GetViewer(ctx context.Context, id uuid.UUID) (*services.ViewerPayload, bool) {
	version, err := cm.getCacheVersion(ctx)
	if err != nil {
		return nil, false
	}
	cached, err := cm.redis.Get(ctx, viewerKey(version, id)).Result()
	if err != nil {
		return nil, false
	}
	var payload services.ViewerPayload
	if err := json.Unmarshal([]byte(cached), &payload); err != nil {
		zap.L().Warn("Failed to unmarshal cached viewer payload", zap.Error(err), zap.String("product_id", id.String()))
		return nil, false
	}
	return &payload, true
}

func (cm *CacheManager) SetViewer(ctx context.Context, id uuid.UUID, payload *services.ViewerPayload) {
	version, err := cm.getCacheVersion(ctx)
	if err != nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		zap.L().Warn("Failed to marshal viewer payload for cache", zap.Error(err))
		return
	}
	if err := cm.redis.Set(ctx, viewerKey(version, id), b, cm.ttl).Err(); err != nil {
		zap.L().Warn("Failed to cache viewer payload", zap.Error(err), zap.String("product_id", id.String()))
	}
}

// InvalidateProduct bumps the cache version and drops the product's entry.
func (cm *CacheManager) InvalidateProduct(ctx context.Context, id uuid.UUID) {
	version, err := cm.getCacheVersion(ctx)
	if err == nil {
		if err := cm.redis.Del(ctx, viewerKey(version, id)).Err(); err != nil {
			zap.L().Warn("Failed to delete viewer cache", zap.Error(err), zap.String("product_id", id.String()))
		}
	}
	newVersion, err := cm.redis.Incr(ctx, CacheVersionKey).Result()
	if err != nil {
		zap.L().Error("Failed to invalidate viewer cache", zap.Error(err), zap.String("product_id", id.String()))
		return
	}
	zap.L().Debug("Viewer cache invalidated", zap.Int64("new_version", newVersion), zap.String("product_id", id.String()))
}

func (cm *CacheManager) getCacheVersion(ctx context.Context) (int64, error) {
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		ver, err := cm.redis.Get(ctx, CacheVersionKey).Int64()
		if err == nil && ver > 0 {
			return ver, nil
		}
		if err == redis.Nil {
			if err := cm.redis.SetNX(ctx, CacheVersionKey, 1, 0).Err(); err == nil {
				continue
			}
		}
		if i < maxRetries-1 {
			time.Sleep(50 * time.Millisecond)
		}
	}
	return 0, fmt.Errorf("failed to get cache version after %d retries", maxRetries)
}

func viewerKey(version int64, id uuid.UUID) string {
	return fmt.Sprintf("%sv%d:%s", ViewerCachePrefix, version, id)
}
