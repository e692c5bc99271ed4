package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PoolSettle/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatsRepository 资金池聚合与价格走势
type StatsRepository interface {
	WithTx(tx *gorm.DB) StatsRepository
	Get(ctx context.Context, marketID uint64) (*model.MarketStats, error)
	ApplyStake(ctx context.Context, marketID uint64, outcome bool, oldAmount, newAmount int64) (*model.MarketStats, error)
	Rebuild(ctx context.Context, marketID uint64) (*model.MarketStats, error)
	AppendTrend(ctx context.Context, trend *model.PriceTrend) error
	ListTrend(ctx context.Context, marketID uint64, limit int) ([]*model.PriceTrend, error)
}

type statsRepository struct {
	db *gorm.DB
}

// NewStatsRepository 创建资金池仓储
func NewStatsRepository(db *gorm.DB) StatsRepository {
	return &statsRepository{db: db}
}

func (r *statsRepository) WithTx(tx *gorm.DB) StatsRepository {
	return &statsRepository{db: tx}
}

// Get 无记录时返回空池（价格 0.5）
func (r *statsRepository) Get(ctx context.Context, marketID uint64) (*model.MarketStats, error) {
	var s model.MarketStats
	err := r.db.WithContext(ctx).Where("market_id = ?", marketID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.MarketStats{MarketID: marketID, CurrentPrice: 0.5}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ApplyStake 先扣掉旧的下注贡献再加上新金额，随后按去重用户数重算参与人数与当前价格。
// 必须在下注写入的同一事务中调用
func (r *statsRepository) ApplyStake(ctx context.Context, marketID uint64, outcome bool, oldAmount, newAmount int64) (*model.MarketStats, error) {
	db := r.db.WithContext(ctx)

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.MarketStats{MarketID: marketID, CurrentPrice: 0.5}).Error; err != nil {
		return nil, fmt.Errorf("初始化资金池失败: %w", err)
	}

	sideCol := "no_pool"
	if outcome {
		sideCol = "yes_pool"
	}
	if err := db.Model(&model.MarketStats{}).
		Where("market_id = ?", marketID).
		Updates(map[string]interface{}{
			sideCol:      gorm.Expr(sideCol+" - ? + ?", oldAmount, newAmount),
			"total_pool": gorm.Expr("total_pool - ? + ?", oldAmount, newAmount),
			"volume":     gorm.Expr("volume + ?", newAmount-oldAmount),
		}).Error; err != nil {
		return nil, fmt.Errorf("更新资金池失败: %w", err)
	}

	return r.refresh(ctx, marketID)
}

// Rebuild 从 bets 重新计算聚合（修复漂移用）；volume 保留原值
func (r *statsRepository) Rebuild(ctx context.Context, marketID uint64) (*model.MarketStats, error) {
	db := r.db.WithContext(ctx)
	var sums struct {
		YesPool int64
		NoPool  int64
	}
	if err := db.Model(&model.Bet{}).
		Select("COALESCE(SUM(CASE WHEN outcome THEN amount ELSE 0 END), 0) AS yes_pool, "+
			"COALESCE(SUM(CASE WHEN outcome THEN 0 ELSE amount END), 0) AS no_pool").
		Where("market_id = ?", marketID).
		Scan(&sums).Error; err != nil {
		return nil, err
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.MarketStats{MarketID: marketID, CurrentPrice: 0.5}).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.MarketStats{}).
		Where("market_id = ?", marketID).
		Updates(map[string]interface{}{
			"yes_pool":   sums.YesPool,
			"no_pool":    sums.NoPool,
			"total_pool": sums.YesPool + sums.NoPool,
		}).Error; err != nil {
		return nil, err
	}
	return r.refresh(ctx, marketID)
}

func (r *statsRepository) refresh(ctx context.Context, marketID uint64) (*model.MarketStats, error) {
	db := r.db.WithContext(ctx)

	var participants int64
	if err := db.Model(&model.Bet{}).
		Where("market_id = ?", marketID).
		Distinct("user_id").
		Count(&participants).Error; err != nil {
		return nil, fmt.Errorf("统计参与人数失败: %w", err)
	}

	var s model.MarketStats
	if err := db.Where("market_id = ?", marketID).First(&s).Error; err != nil {
		return nil, err
	}
	s.Participants = participants
	s.CurrentPrice = CurrentPrice(s.YesPool, s.TotalPool)

	if err := db.Model(&model.MarketStats{}).
		Where("market_id = ?", marketID).
		Updates(map[string]interface{}{
			"participants":  s.Participants,
			"current_price": s.CurrentPrice,
			"updated_at":    time.Now().UTC(),
		}).Error; err != nil {
		return nil, fmt.Errorf("更新当前价格失败: %w", err)
	}
	return &s, nil
}

// CurrentPrice YES 池占比，空池为 0.5
func CurrentPrice(yesPool, totalPool int64) float64 {
	if totalPool <= 0 {
		return 0.5
	}
	return float64(yesPool) / float64(totalPool)
}

func (r *statsRepository) AppendTrend(ctx context.Context, trend *model.PriceTrend) error {
	return r.db.WithContext(ctx).Create(trend).Error
}

func (r *statsRepository) ListTrend(ctx context.Context, marketID uint64, limit int) ([]*model.PriceTrend, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var list []*model.PriceTrend
	if err := r.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("sampled_at DESC, id DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
