package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PoolSettle/internal/apperr"
	"PoolSettle/internal/config"
	"PoolSettle/internal/interfaces"
	"PoolSettle/internal/model"
	"PoolSettle/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// AutoResolveStatus 单个市场在一次扫描中的处理结果
type AutoResolveStatus string

const (
	StatusResolved        AutoResolveStatus = "resolved"
	StatusSkipped         AutoResolveStatus = "skipped"
	StatusFailed          AutoResolveStatus = "failed"
	StatusAlreadyResolved AutoResolveStatus = "already_resolved"
)

// AutoResolveResult 单个市场的扫描结果
type AutoResolveResult struct {
	MarketID     uint64            `json:"market_id"`
	Status       AutoResolveStatus `json:"status"`
	Outcome      *bool             `json:"outcome,omitempty"`
	Price        *float64          `json:"price,omitempty"`
	TargetPrice  float64           `json:"target_price"`
	Direction    model.Direction   `json:"direction"`
	TotalPayout  int64             `json:"total_payout"`
	Error        string            `json:"error,omitempty"`
	BonusSkipped bool              `json:"bonus_skipped,omitempty"`
	Bonus        *BonusResult      `json:"bonus,omitempty"`
}

// AutoResolveService 定时自动结算：全局锁 -> 扫描到期市场 -> 分批取价结算 -> 时间允许时发放 NFT 加成
type AutoResolveService struct {
	locks    repository.LockRepository
	markets  repository.MarketRepository
	oracle   interfaces.PriceOracle
	resolver *ResolutionService
	bonuses  *BonusService
	cfg      config.AutoResolveConfig
	logger   *logrus.Logger
	now      func() time.Time
}

// NewAutoResolveService 创建自动结算服务
func NewAutoResolveService(
	locks repository.LockRepository,
	markets repository.MarketRepository,
	oracle interfaces.PriceOracle,
	resolver *ResolutionService,
	bonuses *BonusService,
	cfg config.AutoResolveConfig,
	logger *logrus.Logger,
) *AutoResolveService {
	if cfg.LockName == "" {
		cfg.LockName = "auto_resolve"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 2
	}
	return &AutoResolveService{
		locks:    locks,
		markets:  markets,
		oracle:   oracle,
		resolver: resolver,
		bonuses:  bonuses,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// DecideOutcome ABOVE：价格 >= 目标价为 YES；BELOW：价格 <= 目标价为 YES
func DecideOutcome(direction model.Direction, price, target float64) (bool, error) {
	switch direction {
	case model.DirectionAbove:
		return price >= target, nil
	case model.DirectionBelow:
		return price <= target, nil
	default:
		return false, fmt.Errorf("unknown direction %q", direction)
	}
}

// RunSweep 执行一次扫描。锁被其他实例持有时返回空结果
func (s *AutoResolveService) RunSweep(ctx context.Context) ([]AutoResolveResult, error) {
	holder := uuid.NewString()
	started := time.Now()
	log := s.logger.WithFields(logrus.Fields{"holder": holder, "lock": s.cfg.LockName})

	acquired, err := s.locks.TryAcquire(ctx, s.cfg.LockName, holder, s.cfg.LockTTL, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("获取自动结算锁失败: %w", err)
	}
	if !acquired {
		log.Debug("自动结算锁被占用，跳过本次扫描")
		return []AutoResolveResult{}, nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		released, err := s.locks.Release(releaseCtx, s.cfg.LockName, holder)
		switch {
		case err != nil:
			log.WithError(err).Warn("释放自动结算锁失败")
		case !released:
			log.Warn("自动结算锁已不属于本实例（可能已过期被抢占）")
		}
	}()

	// 整个扫描不得超过锁的有效期
	sweepCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTTL)
	defer cancel()

	cutoff := s.now().UTC().Add(-s.cfg.Grace)
	due, err := s.markets.ListDueForAutoResolve(sweepCtx, cutoff, s.cfg.ScanLimit)
	if err != nil {
		return nil, fmt.Errorf("查询待自动结算市场失败: %w", err)
	}
	markets := due[:0]
	for _, m := range due {
		if m.AutoResolveReady() {
			markets = append(markets, m)
		}
	}
	log.WithField("markets", len(markets)).Info("自动结算扫描开始")

	results := make([]AutoResolveResult, len(markets))
	for i, m := range markets {
		results[i] = AutoResolveResult{
			MarketID:    m.ID,
			Status:      StatusSkipped,
			TargetPrice: *m.TargetPrice,
			Direction:   *m.Direction,
		}
	}

	for start := 0; start < len(markets); start += s.cfg.BatchSize {
		if sweepCtx.Err() != nil {
			log.WithField("remaining", len(markets)-start).Warn("锁有效期已用尽，剩余市场留待下次扫描")
			break
		}
		end := start + s.cfg.BatchSize
		if end > len(markets) {
			end = len(markets)
		}
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				s.resolveOne(sweepCtx, markets[i], &results[i])
				return nil
			})
		}
		_ = g.Wait()

		if end < len(markets) && s.cfg.BatchPause > 0 {
			timer := time.NewTimer(s.cfg.BatchPause)
			select {
			case <-sweepCtx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}

	s.runBonuses(sweepCtx, started, results, log)

	counts := make(map[AutoResolveStatus]int)
	for _, r := range results {
		counts[r.Status]++
	}
	log.WithFields(logrus.Fields{
		"resolved":         counts[StatusResolved],
		"already_resolved": counts[StatusAlreadyResolved],
		"failed":           counts[StatusFailed],
		"skipped":          counts[StatusSkipped],
		"elapsed":          time.Since(started).String(),
	}).Info("自动结算扫描结束")
	return results, nil
}

// resolveOne 取收盘时刻附近的价格并结算，失败只影响当前市场
func (s *AutoResolveService) resolveOne(ctx context.Context, m *model.Market, res *AutoResolveResult) {
	log := s.logger.WithField("market_id", m.ID)
	asset := *m.OracleAssetID

	price, err := s.oracle.GetPriceNear(ctx, asset, m.CloseTime)
	if err != nil {
		log.WithError(err).Warn("获取预言机价格失败")
		res.Status = StatusFailed
		res.Error = err.Error()
		return
	}
	res.Price = &price
	if err := s.markets.UpdateLastPrice(ctx, m.ID, price, s.now().UTC()); err != nil {
		log.WithError(err).Warn("更新最近价格失败")
	}

	outcome, err := DecideOutcome(*m.Direction, price, *m.TargetPrice)
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		return
	}
	res.Outcome = &outcome

	resolved, err := s.resolver.ResolveMarket(ctx, m.ID, outcome, model.AutoResolveActor)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyResolved) {
			res.Status = StatusAlreadyResolved
			return
		}
		log.WithError(err).Warn("自动结算失败")
		res.Status = StatusFailed
		res.Error = err.Error()
		return
	}
	res.Status = StatusResolved
	res.TotalPayout = resolved.TotalPayout
	if len(resolved.FailedBets) > 0 {
		res.Error = fmt.Sprintf("%d payouts failed, retry required", len(resolved.FailedBets))
	}

	if err := s.markets.UpdateOracleSource(ctx, m.ID, s.oracle.SourceURL(asset, m.CloseTime)); err != nil {
		log.WithError(err).Warn("记录价格来源失败")
	}
}

// runBonuses 剩余锁时间不足 BonusReserve 时跳过加成，交给下一轮或人工重试
func (s *AutoResolveService) runBonuses(ctx context.Context, started time.Time, results []AutoResolveResult, log *logrus.Entry) {
	if s.bonuses == nil {
		return
	}
	var resolved []int
	for i := range results {
		if results[i].Status == StatusResolved {
			resolved = append(resolved, i)
		}
	}
	if len(resolved) == 0 {
		return
	}

	remaining := s.cfg.LockTTL - time.Since(started)
	if remaining < s.cfg.BonusReserve || ctx.Err() != nil {
		log.WithFields(logrus.Fields{
			"remaining": remaining.String(),
			"reserve":   s.cfg.BonusReserve.String(),
			"markets":   len(resolved),
		}).Warn("锁剩余时间不足，本轮跳过 NFT 加成")
		for _, i := range resolved {
			results[i].BonusSkipped = true
		}
		return
	}

	for _, i := range resolved {
		bonus, err := s.bonuses.ApplyBonuses(ctx, results[i].MarketID)
		if err != nil {
			log.WithError(err).WithField("market_id", results[i].MarketID).Warn("NFT 加成失败")
			results[i].BonusSkipped = true
			continue
		}
		results[i].Bonus = bonus
	}
}
