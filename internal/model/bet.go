package model

import "time"

// Bet 对应 bets 表，每个 (user, market) 至多一行；只允许同方向加注
type Bet struct {
	ID           uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	UserID       uint64    `gorm:"column:user_id;type:bigint;not null;uniqueIndex:uk_bet_user_market"`
	MarketID     uint64    `gorm:"column:market_id;type:bigint;not null;uniqueIndex:uk_bet_user_market;index"`
	Outcome      bool      `gorm:"column:outcome;type:boolean;not null;comment:true=YES"`
	Amount       int64     `gorm:"column:amount;type:bigint;not null"`
	ReferralCode *string   `gorm:"column:referral_code;type:varchar(32)"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Bet) TableName() string { return "bets" }

// Referral 推荐码
type Referral struct {
	ID              uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Code            string    `gorm:"column:code;type:varchar(32);uniqueIndex;not null"`
	ReferrerID      uint64    `gorm:"column:referrer_id;type:bigint;not null;index"`
	UsageCount      int64     `gorm:"column:usage_count;type:bigint;not null;default:0"`
	TotalCommission int64     `gorm:"column:total_commission;type:bigint;not null;default:0"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Referral) TableName() string { return "referrals" }
