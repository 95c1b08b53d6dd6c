package marketdata

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const priceKeyPrefix = "price:"

// RedisSource is a read-through price cache. Misses fall through to the
// upstream source and the result is cached with a TTL. Redis errors are
// logged and degrade to the upstream, never fail a portfolio read.
type RedisSource struct {
	rdb      *redis.Client
	upstream PriceSource
	ttl      time.Duration
	log      *zap.Logger
}

func NewRedisSource(rdb *redis.Client, upstream PriceSource, ttl time.Duration, log *zap.Logger) *RedisSource {
	return &RedisSource{rdb: rdb, upstream: upstream, ttl: ttl, log: log}
}

func (s *RedisSource) LastPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	key := priceKeyPrefix + productID
	val, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		p, perr := decimal.NewFromString(val)
		if perr == nil {
			return p, nil
		}
		s.log.Warn("corrupt cached price", zap.String("product_id", productID), zap.String("value", val))
	} else if err != redis.Nil {
		s.log.Warn("price cache read failed", zap.String("product_id", productID), zap.Error(err))
	}

	p, err := s.upstream.LastPrice(ctx, productID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if err := s.rdb.Set(ctx, key, p.String(), s.ttl).Err(); err != nil {
		s.log.Warn("price cache write failed", zap.String("product_id", productID), zap.Error(err))
	}
	return p, nil
}
