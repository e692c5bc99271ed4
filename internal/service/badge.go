package service

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogBadgeTrigger 未启用 Redis 时的徽章触发器，只记录日志
type LogBadgeTrigger struct {
	logger *logrus.Logger
}

func NewLogBadgeTrigger(logger *logrus.Logger) *LogBadgeTrigger {
	return &LogBadgeTrigger{logger: logger}
}

func (t *LogBadgeTrigger) Recompute(_ context.Context, userID uint64, eventType string) error {
	t.logger.WithFields(logrus.Fields{"user_id": userID, "event": eventType}).Debug("徽章重算（未配置事件通道）")
	return nil
}
