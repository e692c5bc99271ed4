package interfaces

import (
	"context"
	"time"
)

// WinnerPayout 结算报告中的单个赢家
type WinnerPayout struct {
	BetID      uint64 `json:"bet_id"`
	UserID     uint64 `json:"user_id"`
	Stake      int64  `json:"stake"`
	Payout     int64  `json:"payout"`
	Commission int64  `json:"commission,omitempty"`
}

// SettlementReport 市场结算报告（审计用）
type SettlementReport struct {
	MarketID    uint64         `json:"market_id"`
	Outcome     bool           `json:"outcome"`
	ResolvedBy  string         `json:"resolved_by"`
	ResolvedAt  time.Time      `json:"resolved_at"`
	TotalPool   int64          `json:"total_pool"`
	WinningPool int64          `json:"winning_pool"`
	TotalPayout int64          `json:"total_payout"`
	Winners     []WinnerPayout `json:"winners"`
	FailedBets  []uint64       `json:"failed_bets,omitempty"`
}

// SettlementArchiver 结算报告归档
type SettlementArchiver interface {
	Archive(ctx context.Context, report *SettlementReport) error
}
