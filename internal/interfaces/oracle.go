package interfaces

import (
	"context"
	"time"
)

// PriceOracle 外部价格预言机；调用方负责超时，实现内部负责 429/5xx 退避重试
type PriceOracle interface {
	// GetPriceNear 返回距离 at 最近的历史价格（在容差窗口内）
	GetPriceNear(ctx context.Context, assetID string, at time.Time) (float64, error)
	// GetCurrentPrice 返回当前价格
	GetCurrentPrice(ctx context.Context, assetID string) (float64, error)
	// SourceURL 结算价格的可审计来源地址
	SourceURL(assetID string, at time.Time) string
}
