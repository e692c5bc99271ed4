package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// PriceCache 缓存预言机历史价格。历史价格不会变化，TTL 只用于回收空间
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.rdb, ttl: ttl}
}

func priceKey(asset string, at time.Time) string {
	return fmt.Sprintf("price:%s:%d", asset, at.Unix())
}

// Get 未命中返回 ok=false
func (p *PriceCache) Get(ctx context.Context, asset string, at time.Time) (float64, bool, error) {
	raw, err := p.rdb.Get(ctx, priceKey(asset, at)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis: get price: %w", err)
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("redis: parse price %q: %w", raw, err)
	}
	return price, true, nil
}

func (p *PriceCache) Set(ctx context.Context, asset string, at time.Time, price float64) error {
	val := strconv.FormatFloat(price, 'f', -1, 64)
	if err := p.rdb.Set(ctx, priceKey(asset, at), val, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set price: %w", err)
	}
	return nil
}
