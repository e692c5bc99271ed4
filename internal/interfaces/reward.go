package interfaces

import "context"

// 徽章重算事件类型
const (
	BadgeEventMarketResolved = "market_resolved"
	BadgeEventBetPlaced      = "bet_placed"
)

// NFTMultiplierLookup 按钱包地址查询 NFT 奖励倍数。没有 NFT 返回 1，RPC 失败返回 error
type NFTMultiplierLookup interface {
	GetMultiplier(ctx context.Context, walletAddress string) (float64, error)
}

// BadgeTrigger 徽章重算触发器，调用方不等待结果，失败只记录日志
type BadgeTrigger interface {
	Recompute(ctx context.Context, userID uint64, eventType string) error
}
