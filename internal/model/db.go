package model

// AllModels 按依赖顺序返回需要迁移的表
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&UserPoints{},
		&Market{},
		&MarketStats{},
		&PriceTrend{},
		&Referral{},
		&Bet{},
		&PointsTransaction{},
		&WinRecord{},
		&AutoResolveLock{},
	}
}
