package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PoolSettle/internal/apperr"
	"PoolSettle/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MarketRepository 市场持久化；ClaimResolution 是结算唯一的并发保护
type MarketRepository interface {
	WithTx(tx *gorm.DB) MarketRepository
	Create(ctx context.Context, m *model.Market) error
	GetByID(ctx context.Context, id uint64) (*model.Market, error)
	GetByIDForShare(ctx context.Context, id uint64) (*model.Market, error)
	ClaimResolution(ctx context.Context, id uint64, outcome bool, resolvedBy string, at time.Time) (bool, error)
	ListDueForAutoResolve(ctx context.Context, cutoff time.Time, limit int) ([]*model.Market, error)
	UpdateLastPrice(ctx context.Context, id uint64, price float64, at time.Time) error
	UpdateOracleSource(ctx context.Context, id uint64, sourceURL string) error
}

type marketRepository struct {
	db *gorm.DB
}

// NewMarketRepository 创建市场仓储
func NewMarketRepository(db *gorm.DB) MarketRepository {
	return &marketRepository{db: db}
}

func (r *marketRepository) WithTx(tx *gorm.DB) MarketRepository {
	return &marketRepository{db: tx}
}

func (r *marketRepository) Create(ctx context.Context, m *model.Market) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *marketRepository) GetByID(ctx context.Context, id uint64) (*model.Market, error) {
	return r.first(r.db.WithContext(ctx), id)
}

// GetByIDForShare 事务内加共享锁读取（FOR SHARE），ClaimResolution 的 UPDATE 需等待持锁事务提交。
// sqlite 方言会忽略该子句，其写事务本身串行
func (r *marketRepository) GetByIDForShare(ctx context.Context, id uint64) (*model.Market, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "SHARE"}), id)
}

func (r *marketRepository) first(q *gorm.DB, id uint64) (*model.Market, error) {
	var m model.Market
	if err := q.Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("market %d: %w", id, apperr.ErrMarketNotFound)
		}
		return nil, err
	}
	return &m, nil
}

// ClaimResolution 条件更新 resolved=false -> true，影响行数为 0 表示已被其他进程结算
func (r *marketRepository) ClaimResolution(ctx context.Context, id uint64, outcome bool, resolvedBy string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Market{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]interface{}{
			"resolved":    true,
			"outcome":     outcome,
			"resolved_at": at,
			"resolved_by": resolvedBy,
			"updated_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListDueForAutoResolve 查询已过收盘+宽限期、未结算且自动结算配置完整的市场
func (r *marketRepository) ListDueForAutoResolve(ctx context.Context, cutoff time.Time, limit int) ([]*model.Market, error) {
	if limit <= 0 {
		limit = 50
	}
	var list []*model.Market
	err := r.db.WithContext(ctx).
		Where("auto_resolve = ? AND resolved = ? AND close_time <= ?", true, false, cutoff).
		Where("oracle_asset_id IS NOT NULL AND target_price IS NOT NULL AND direction IS NOT NULL").
		Order("close_time ASC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *marketRepository) UpdateLastPrice(ctx context.Context, id uint64, price float64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Market{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_price":    price,
			"last_price_at": at,
			"updated_at":    at,
		}).Error
}

func (r *marketRepository) UpdateOracleSource(ctx context.Context, id uint64, sourceURL string) error {
	return r.db.WithContext(ctx).Model(&model.Market{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"oracle_source_url": sourceURL,
			"updated_at":        time.Now().UTC(),
		}).Error
}
