package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BadgeChannel 徽章重算事件的 Pub/Sub 频道，由徽章服务订阅
const BadgeChannel = "badge:recompute"

type badgeEvent struct {
	UserID    uint64    `json:"userId"`
	EventType string    `json:"eventType"`
	At        time.Time `json:"at"`
}

// BadgePublisher 实现 interfaces.BadgeTrigger，把重算请求发布到 Redis
type BadgePublisher struct {
	rdb *redis.Client
	now func() time.Time
}

func NewBadgePublisher(c *Client) *BadgePublisher {
	return &BadgePublisher{rdb: c.rdb, now: time.Now}
}

func encodeBadgeEvent(userID uint64, eventType string, at time.Time) ([]byte, error) {
	return json.Marshal(badgeEvent{UserID: userID, EventType: eventType, At: at.UTC()})
}

func (b *BadgePublisher) Recompute(ctx context.Context, userID uint64, eventType string) error {
	payload, err := encodeBadgeEvent(userID, eventType, b.now())
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, BadgeChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", BadgeChannel, err)
	}
	return nil
}
