package repository

import (
	"context"
	"errors"
	"time"

	"PoolSettle/internal/apperr"
	"PoolSettle/internal/model"

	"gorm.io/gorm"
)

// BetRepository 下注持久化
type BetRepository interface {
	WithTx(tx *gorm.DB) BetRepository
	GetByUserAndMarket(ctx context.Context, userID, marketID uint64) (*model.Bet, error)
	Create(ctx context.Context, bet *model.Bet) error
	UpdateAmount(ctx context.Context, id uint64, oldAmount, amount int64) error
	ListByMarket(ctx context.Context, marketID uint64) ([]*model.Bet, error)
	CountParticipants(ctx context.Context, marketID uint64) (int64, error)
}

type betRepository struct {
	db *gorm.DB
}

// NewBetRepository 创建下注仓储
func NewBetRepository(db *gorm.DB) BetRepository {
	return &betRepository{db: db}
}

func (r *betRepository) WithTx(tx *gorm.DB) BetRepository {
	return &betRepository{db: tx}
}

// GetByUserAndMarket 不存在时返回 nil, nil
func (r *betRepository) GetByUserAndMarket(ctx context.Context, userID, marketID uint64) (*model.Bet, error) {
	var b model.Bet
	err := r.db.WithContext(ctx).Where("user_id = ? AND market_id = ?", userID, marketID).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *betRepository) Create(ctx context.Context, bet *model.Bet) error {
	return r.db.WithContext(ctx).Create(bet).Error
}

// UpdateAmount 以读取时的金额为条件更新，期间被并发加注改过则返回冲突
func (r *betRepository) UpdateAmount(ctx context.Context, id uint64, oldAmount, amount int64) error {
	res := r.db.WithContext(ctx).Model(&model.Bet{}).
		Where("id = ? AND amount = ?", id, oldAmount).
		Updates(map[string]interface{}{"amount": amount, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict(apperr.CodeBetConflict, "bet changed concurrently, refresh and retry")
	}
	return nil
}

func (r *betRepository) ListByMarket(ctx context.Context, marketID uint64) ([]*model.Bet, error) {
	var list []*model.Bet
	if err := r.db.WithContext(ctx).Where("market_id = ?", marketID).Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// CountParticipants 按去重用户数统计，加注不会重复计数
func (r *betRepository) CountParticipants(ctx context.Context, marketID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Bet{}).
		Where("market_id = ?", marketID).
		Distinct("user_id").
		Count(&n).Error
	return n, err
}
