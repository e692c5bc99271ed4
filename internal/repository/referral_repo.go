package repository

import (
	"context"
	"errors"
	"time"

	"PoolSettle/internal/model"

	"gorm.io/gorm"
)

// ReferralRepository 推荐码
type ReferralRepository interface {
	WithTx(tx *gorm.DB) ReferralRepository
	Create(ctx context.Context, ref *model.Referral) error
	GetByCode(ctx context.Context, code string) (*model.Referral, error)
	IncrementUsage(ctx context.Context, id uint64) error
	AddCommission(ctx context.Context, id uint64, amount int64) error
}

type referralRepository struct {
	db *gorm.DB
}

// NewReferralRepository 创建推荐码仓储
func NewReferralRepository(db *gorm.DB) ReferralRepository {
	return &referralRepository{db: db}
}

func (r *referralRepository) WithTx(tx *gorm.DB) ReferralRepository {
	return &referralRepository{db: tx}
}

func (r *referralRepository) Create(ctx context.Context, ref *model.Referral) error {
	return r.db.WithContext(ctx).Create(ref).Error
}

// GetByCode 不存在时返回 nil, nil
func (r *referralRepository) GetByCode(ctx context.Context, code string) (*model.Referral, error) {
	var ref model.Referral
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *referralRepository) IncrementUsage(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&model.Referral{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"usage_count": gorm.Expr("usage_count + 1"),
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (r *referralRepository) AddCommission(ctx context.Context, id uint64, amount int64) error {
	return r.db.WithContext(ctx).Model(&model.Referral{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_commission": gorm.Expr("total_commission + ?", amount),
			"updated_at":       time.Now().UTC(),
		}).Error
}
