package model

import "time"

// Direction 自动结算方向
type Direction string

const (
	DirectionAbove Direction = "ABOVE" // 价格 >= 目标价判定 YES
	DirectionBelow Direction = "BELOW" // 价格 <= 目标价判定 YES
)

// AutoResolveActor 自动结算时写入 resolved_by 的身份标识
const AutoResolveActor = "system:auto-resolve"

// Market 对应 markets 表，二元（YES/NO）预测市场
// resolved=true 之后 outcome/resolved_at/resolved_by 永不改变
type Market struct {
	ID              uint64     `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	Title           string     `gorm:"column:title;type:varchar(256);not null;comment:市场标题"`
	CloseTime       time.Time  `gorm:"column:close_time;type:timestamp;not null;index;comment:停止下注时间"`
	MaxBet          int64      `gorm:"column:max_bet;type:bigint;not null;default:0;comment:单笔最大下注积分，0 表示不限"`
	Resolved        bool       `gorm:"column:resolved;type:boolean;not null;default:false;index;comment:是否已结算"`
	Outcome         *bool      `gorm:"column:outcome;type:boolean;comment:结算结果 true=YES"`
	ResolvedAt      *time.Time `gorm:"column:resolved_at;type:timestamp;comment:结算时间"`
	ResolvedBy      *string    `gorm:"column:resolved_by;type:varchar(64);comment:结算人（管理员或自动结算标识）"`
	AutoResolve     bool       `gorm:"column:auto_resolve;type:boolean;not null;default:false;comment:是否启用自动结算"`
	OracleAssetID   *string    `gorm:"column:oracle_asset_id;type:varchar(64);comment:预言机资产ID"`
	TargetPrice     *float64   `gorm:"column:target_price;type:numeric(24,8);comment:目标价"`
	Direction       *Direction `gorm:"column:direction;type:varchar(8);comment:ABOVE/BELOW"`
	LastPrice       *float64   `gorm:"column:last_price;type:numeric(24,8);comment:最近一次预言机价格"`
	LastPriceAt     *time.Time `gorm:"column:last_price_at;type:timestamp;comment:最近一次取价时间"`
	OracleSourceURL *string    `gorm:"column:oracle_source_url;type:varchar(512);comment:结算价格来源"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime;comment:创建时间"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime;comment:更新时间"`
}

func (Market) TableName() string { return "markets" }

// AutoResolveReady 自动结算配置是否完整
func (m *Market) AutoResolveReady() bool {
	if !m.AutoResolve || m.OracleAssetID == nil || m.TargetPrice == nil || m.Direction == nil {
		return false
	}
	return *m.OracleAssetID != "" && (*m.Direction == DirectionAbove || *m.Direction == DirectionBelow)
}

// MarketStats 资金池聚合（可由 bets 重新计算，随每次下注在同一事务内增量维护）
type MarketStats struct {
	MarketID     uint64    `gorm:"column:market_id;primaryKey;autoIncrement:false"`
	YesPool      int64     `gorm:"column:yes_pool;type:bigint;not null;default:0"`
	NoPool       int64     `gorm:"column:no_pool;type:bigint;not null;default:0"`
	TotalPool    int64     `gorm:"column:total_pool;type:bigint;not null;default:0"`
	Participants int64     `gorm:"column:participants;type:bigint;not null;default:0"`
	Volume       int64     `gorm:"column:volume;type:bigint;not null;default:0"`
	CurrentPrice float64   `gorm:"column:current_price;type:numeric(10,6);not null;default:0.5"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (MarketStats) TableName() string { return "market_stats" }

// PriceTrend 价格走势采样点
type PriceTrend struct {
	ID         uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	MarketID   uint64    `gorm:"column:market_id;type:bigint;not null;index"`
	YesPercent float64   `gorm:"column:yes_percent;type:numeric(10,4);not null"`
	Volume     int64     `gorm:"column:volume;type:bigint;not null"`
	SampledAt  time.Time `gorm:"column:sampled_at;type:timestamp;not null"`
}

func (PriceTrend) TableName() string { return "price_trends" }
