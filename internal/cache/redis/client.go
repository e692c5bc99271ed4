// Package redis 基于 go-redis/v9 的价格缓存与徽章事件发布
package redis

import (
	"context"
	"fmt"

	"PoolSettle/internal/config"

	"github.com/redis/go-redis/v9"
)

// Client 包装 go-redis 客户端
type Client struct {
	rdb *redis.Client
}

// New 创建客户端并 Ping 确认连通
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
