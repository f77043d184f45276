package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cryptotrader/internal/exchange"
	"cryptotrader/internal/metrics"
	"cryptotrader/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultCacheTTL - время жизни окна свечей в кэше
const DefaultCacheTTL = time.Minute

const cacheKeyPrefix = "bars:"

// RedisCache - декоратор MarketData, кэширующий окна свечей в Redis
//
// Ошибки Redis не влияют на результат: запрос уходит в источник.
// Пустые ответы не кэшируются.
type RedisCache struct {
	inner  exchange.MarketData
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache оборачивает источник свечей кэшем
func NewRedisCache(inner exchange.MarketData, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{inner: inner, rdb: rdb, ttl: ttl, logger: logger}
}

// CacheKey возвращает ключ окна свечей
func CacheKey(symbol, timeframe string, start, end time.Time) string {
	return fmt.Sprintf("%s%s:%s:%d:%d", cacheKeyPrefix, symbol, timeframe, start.UnixMilli(), end.UnixMilli())
}

// FetchBars реализует exchange.MarketData
func (c *RedisCache) FetchBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]models.Bar, error) {
	key := CacheKey(symbol, timeframe, start, end)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var bars []models.Bar
		if jerr := json.Unmarshal(raw, &bars); jerr == nil {
			metrics.RecordCacheLookup("hit")
			return bars, nil
		}
		c.logger.Warn("corrupted bar cache entry", zap.String("key", key))
		metrics.RecordCacheLookup("error")
	case errors.Is(err, redis.Nil):
		metrics.RecordCacheLookup("miss")
	default:
		c.logger.Warn("bar cache unavailable", zap.String("key", key), zap.Error(err))
		metrics.RecordCacheLookup("error")
	}

	bars, err := c.inner.FetchBars(ctx, symbol, timeframe, start, end)
	if err != nil || len(bars) == 0 {
		return bars, err
	}

	payload, err := json.Marshal(bars)
	if err == nil {
		err = c.rdb.Set(ctx, key, payload, c.ttl).Err()
	}
	if err != nil {
		c.logger.Warn("failed to cache bars", zap.String("key", key), zap.Error(err))
	}
	return bars, nil
}
