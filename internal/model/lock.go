package model

import "time"

// AutoResolveLock 全局互斥行：同一时刻只有一个持有者；过期后可被抢占
type AutoResolveLock struct {
	Name       string     `gorm:"column:name;primaryKey;type:varchar(64)"`
	Locked     bool       `gorm:"column:locked;type:boolean;not null;default:false"`
	Holder     *string    `gorm:"column:holder;type:varchar(64)"`
	AcquiredAt *time.Time `gorm:"column:acquired_at;type:timestamp"`
	ExpiresAt  *time.Time `gorm:"column:expires_at;type:timestamp"`
}

func (AutoResolveLock) TableName() string { return "auto_resolve_locks" }
