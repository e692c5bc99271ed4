package repository

import (
	"context"
	"errors"
	"time"

	"PoolSettle/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockRepository 基于单行记录的分布式互斥锁：不存在则创建，过期则抢占，仅持有者可释放
type LockRepository interface {
	TryAcquire(ctx context.Context, name, holder string, ttl time.Duration, now time.Time) (bool, error)
	Release(ctx context.Context, name, holder string) (bool, error)
	Get(ctx context.Context, name string) (*model.AutoResolveLock, error)
}

type lockRepository struct {
	db *gorm.DB
}

// NewLockRepository 创建锁仓储
func NewLockRepository(db *gorm.DB) LockRepository {
	return &lockRepository{db: db}
}

func (r *lockRepository) TryAcquire(ctx context.Context, name, holder string, ttl time.Duration, now time.Time) (bool, error) {
	db := r.db.WithContext(ctx)
	expires := now.Add(ttl)

	// 1. 行不存在：直接创建即获得锁
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.AutoResolveLock{
		Name:       name,
		Locked:     true,
		Holder:     &holder,
		AcquiredAt: &now,
		ExpiresAt:  &expires,
	})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	// 2. 行已存在：仅在未锁定或已过期时抢占
	res = db.Model(&model.AutoResolveLock{}).
		Where("name = ? AND (locked = ? OR expires_at IS NULL OR expires_at < ?)", name, false, now).
		Updates(map[string]interface{}{
			"locked":      true,
			"holder":      holder,
			"acquired_at": now,
			"expires_at":  expires,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Release 只释放自己持有的锁；返回 false 表示锁已不属于 holder（可能过期后被抢占）
func (r *lockRepository) Release(ctx context.Context, name, holder string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.AutoResolveLock{}).
		Where("name = ? AND holder = ? AND locked = ?", name, holder, true).
		Updates(map[string]interface{}{
			"locked":     false,
			"expires_at": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *lockRepository) Get(ctx context.Context, name string) (*model.AutoResolveLock, error) {
	var l model.AutoResolveLock
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}
