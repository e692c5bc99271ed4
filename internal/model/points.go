package model

import (
	"time"

	"gorm.io/datatypes"
)

// TransactionType 积分流水类型
type TransactionType string

const (
	TxBetPlaced     TransactionType = "BET_PLACED"
	TxBetUpdated    TransactionType = "BET_UPDATED"
	TxBetWon        TransactionType = "BET_WON"
	TxReferralBonus TransactionType = "REFERRAL_BONUS"
	TxNFTBonus      TransactionType = "NFT_BONUS"
	TxDailyClaim    TransactionType = "DAILY_CLAIM"
)

// BonusStatus WinRecord 上的 NFT 加成状态
type BonusStatus string

const (
	BonusPending BonusStatus = "pending"
	BonusNone    BonusStatus = "no_bonus"
	BonusApplied BonusStatus = "applied"
	BonusFailed  BonusStatus = "failed" // 查询失败，下次重试
)

// Final 已终结的状态不会再被加成流程处理
func (s BonusStatus) Final() bool {
	return s == BonusNone || s == BonusApplied
}

// User 用户（钱包登录），NFT 查询使用 WalletAddress
type User struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	WalletAddress string    `gorm:"column:wallet_address;type:varchar(64);uniqueIndex;not null;comment:用户钱包地址"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime;comment:创建时间"`
}

func (User) TableName() string { return "users" }

// UserPoints 用户积分余额，每个用户一行
type UserPoints struct {
	UserID      uint64    `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	Balance     int64     `gorm:"column:balance;type:bigint;not null;default:0;comment:可用余额"`
	TotalEarned int64     `gorm:"column:total_earned;type:bigint;not null;default:0;comment:累计获得"`
	TotalSpent  int64     `gorm:"column:total_spent;type:bigint;not null;default:0;comment:累计消耗"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (UserPoints) TableName() string { return "user_points" }

// PointsTransaction 积分流水（只追加），Metadata 记录市场、结果与 NFT 加成状态
type PointsTransaction struct {
	ID        uint64          `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    uint64          `gorm:"column:user_id;type:bigint;not null;index"`
	Type      TransactionType `gorm:"column:type;type:varchar(32);not null;index"`
	Amount    int64           `gorm:"column:amount;type:bigint;not null;comment:正数入账，负数扣减"`
	MarketID  *uint64         `gorm:"column:market_id;type:bigint;index"`
	Metadata  datatypes.JSON  `gorm:"column:metadata;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (PointsTransaction) TableName() string { return "points_transactions" }

// WinRecord 赢家记录，每个 (market, bet) 一行；WinAmount 在 NFT 加成时至多增加一次
type WinRecord struct {
	ID                  uint64      `gorm:"column:id;primaryKey;autoIncrement"`
	MarketID            uint64      `gorm:"column:market_id;type:bigint;not null;uniqueIndex:uk_win_market_bet;index"`
	BetID               uint64      `gorm:"column:bet_id;type:bigint;not null;uniqueIndex:uk_win_market_bet"`
	UserID              uint64      `gorm:"column:user_id;type:bigint;not null;index"`
	BetAmount           int64       `gorm:"column:bet_amount;type:bigint;not null"`
	WinAmount           int64       `gorm:"column:win_amount;type:bigint;not null"`
	BasePayout          int64       `gorm:"column:base_payout;type:bigint;not null"`
	PointsTransactionID uint64      `gorm:"column:points_transaction_id;type:bigint;not null;comment:待处理加成的派奖流水"`
	BonusStatus         BonusStatus `gorm:"column:bonus_status;type:varchar(16);not null;default:pending;index"`
	BonusMultiplier     *float64    `gorm:"column:bonus_multiplier;type:numeric(10,4)"`
	BonusAmount         int64       `gorm:"column:bonus_amount;type:bigint;not null;default:0"`
	BonusError          *string     `gorm:"column:bonus_error;type:varchar(512)"`
	CreatedAt           time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

func (WinRecord) TableName() string { return "win_records" }
