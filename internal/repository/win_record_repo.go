package repository

import (
	"context"
	"time"
	"unicode/utf8"

	"PoolSettle/internal/model"

	"gorm.io/gorm"
)

// WinRecordRepository 赢家记录与 NFT 加成状态
type WinRecordRepository interface {
	WithTx(tx *gorm.DB) WinRecordRepository
	Create(ctx context.Context, rec *model.WinRecord) error
	Exists(ctx context.Context, marketID, betID uint64) (bool, error)
	ListByMarket(ctx context.Context, marketID uint64) ([]*model.WinRecord, error)
	FinalizeBonus(ctx context.Context, id uint64, status model.BonusStatus, multiplier float64, winAmount, bonusAmount int64) (bool, error)
	MarkBonusFailed(ctx context.Context, id uint64, errMsg string) (bool, error)
}

// 仍可被加成流程处理的状态
var openBonusStatuses = []model.BonusStatus{model.BonusPending, model.BonusFailed}

type winRecordRepository struct {
	db *gorm.DB
}

// NewWinRecordRepository 创建赢家记录仓储
func NewWinRecordRepository(db *gorm.DB) WinRecordRepository {
	return &winRecordRepository{db: db}
}

func (r *winRecordRepository) WithTx(tx *gorm.DB) WinRecordRepository {
	return &winRecordRepository{db: tx}
}

func (r *winRecordRepository) Create(ctx context.Context, rec *model.WinRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *winRecordRepository) Exists(ctx context.Context, marketID, betID uint64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.WinRecord{}).
		Where("market_id = ? AND bet_id = ?", marketID, betID).
		Count(&n).Error
	return n > 0, err
}

func (r *winRecordRepository) ListByMarket(ctx context.Context, marketID uint64) ([]*model.WinRecord, error) {
	var list []*model.WinRecord
	if err := r.db.WithContext(ctx).Where("market_id = ?", marketID).Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// FinalizeBonus 仅当状态仍为 pending/failed 时写入最终状态；返回 false 表示已被处理过
func (r *winRecordRepository) FinalizeBonus(ctx context.Context, id uint64, status model.BonusStatus, multiplier float64, winAmount, bonusAmount int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.WinRecord{}).
		Where("id = ? AND bonus_status IN ?", id, openBonusStatuses).
		Updates(map[string]interface{}{
			"bonus_status":     status,
			"bonus_multiplier": multiplier,
			"win_amount":       winAmount,
			"bonus_amount":     bonusAmount,
			"bonus_error":      nil,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkBonusFailed 记录查询失败，win_amount 保持不变
func (r *winRecordRepository) MarkBonusFailed(ctx context.Context, id uint64, errMsg string) (bool, error) {
	errMsg = truncateRunes(errMsg, maxBonusErrorLen)
	res := r.db.WithContext(ctx).Model(&model.WinRecord{}).
		Where("id = ? AND bonus_status IN ?", id, openBonusStatuses).
		Updates(map[string]interface{}{
			"bonus_status": model.BonusFailed,
			"bonus_error":  errMsg,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

const maxBonusErrorLen = 500

// truncateRunes 按字符截断，避免切断多字节 UTF-8
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
