package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PoolSettle/internal/apperr"
	"PoolSettle/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PointsRepository 积分余额与流水
type PointsRepository interface {
	WithTx(tx *gorm.DB) PointsRepository
	GetAccount(ctx context.Context, userID uint64) (*model.UserPoints, error)
	Debit(ctx context.Context, userID uint64, amount int64) error
	Credit(ctx context.Context, userID uint64, amount int64) error
	AddTransaction(ctx context.Context, t *model.PointsTransaction) error
	GetTransaction(ctx context.Context, id uint64) (*model.PointsTransaction, error)
	UpdateTransactionMetadata(ctx context.Context, id uint64, meta datatypes.JSON) error
	ListTransactions(ctx context.Context, userID uint64, txType model.TransactionType) ([]*model.PointsTransaction, error)
}

type pointsRepository struct {
	db *gorm.DB
}

// NewPointsRepository 创建积分仓储
func NewPointsRepository(db *gorm.DB) PointsRepository {
	return &pointsRepository{db: db}
}

func (r *pointsRepository) WithTx(tx *gorm.DB) PointsRepository {
	return &pointsRepository{db: tx}
}

// GetAccount 不存在时返回 nil, nil
func (r *pointsRepository) GetAccount(ctx context.Context, userID uint64) (*model.UserPoints, error) {
	var p model.UserPoints
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Debit 条件扣减（balance >= amount），余额不足返回 ErrInsufficientBalance
func (r *pointsRepository) Debit(ctx context.Context, userID uint64, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("扣减金额必须大于 0: %d", amount)
	}
	res := r.db.WithContext(ctx).Model(&model.UserPoints{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"balance":     gorm.Expr("balance - ?", amount),
			"total_spent": gorm.Expr("total_spent + ?", amount),
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrInsufficientBalance
	}
	return nil
}

// Credit 入账并累计 total_earned，账户不存在时创建
func (r *pointsRepository) Credit(ctx context.Context, userID uint64, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("入账金额不能为负: %d", amount)
	}
	if amount == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)
	res := db.Model(&model.UserPoints{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance":      gorm.Expr("balance + ?", amount),
			"total_earned": gorm.Expr("total_earned + ?", amount),
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return db.Create(&model.UserPoints{UserID: userID, Balance: amount, TotalEarned: amount}).Error
}

func (r *pointsRepository) AddTransaction(ctx context.Context, t *model.PointsTransaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *pointsRepository) GetTransaction(ctx context.Context, id uint64) (*model.PointsTransaction, error) {
	var t model.PointsTransaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *pointsRepository) UpdateTransactionMetadata(ctx context.Context, id uint64, meta datatypes.JSON) error {
	return r.db.WithContext(ctx).Model(&model.PointsTransaction{}).
		Where("id = ?", id).
		Update("metadata", meta).Error
}

func (r *pointsRepository) ListTransactions(ctx context.Context, userID uint64, txType model.TransactionType) ([]*model.PointsTransaction, error) {
	db := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if txType != "" {
		db = db.Where("type = ?", txType)
	}
	var list []*model.PointsTransaction
	if err := db.Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
