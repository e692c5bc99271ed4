package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"PoolSettle/internal/apperr"
	"PoolSettle/internal/config"
	"PoolSettle/internal/interfaces"
	"PoolSettle/internal/model"
	"PoolSettle/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultPayoutBatchSize = 3
	defaultPayoutTimeout   = 5 * time.Minute
	sideEffectTimeout      = 30 * time.Second
)

// ResolveResult 结算汇总。FailedBets 为事务回滚的批次中的下注，可通过 RetryPayouts 补发
type ResolveResult struct {
	MarketID        uint64                    `json:"market_id"`
	Outcome         bool                      `json:"outcome"`
	ResolvedBets    int                       `json:"resolved_bets"`
	WinningBets     int                       `json:"winning_bets"`
	LosingBets      int                       `json:"losing_bets"`
	TotalPool       int64                     `json:"total_pool"`
	WinningPool     int64                     `json:"winning_pool"`
	TotalPayout     int64                     `json:"total_payout"`
	TotalCommission int64                     `json:"total_commission"`
	PaidWinners     int                       `json:"paid_winners"`
	FailedBets      []uint64                  `json:"failed_bets,omitempty"`
	Winners         []interfaces.WinnerPayout `json:"-"`
}

// ResolutionService 市场结算：原子抢占 -> 分批派彩 -> 异步副作用（徽章、归档）
type ResolutionService struct {
	db            *gorm.DB
	markets       repository.MarketRepository
	bets          repository.BetRepository
	points        repository.PointsRepository
	wins          repository.WinRecordRepository
	referrals     repository.ReferralRepository
	badges        interfaces.BadgeTrigger
	archiver      interfaces.SettlementArchiver
	batchSize     int
	payoutTimeout time.Duration
	referralRate  decimal.Decimal
	logger        *logrus.Logger
	now           func() time.Time
}

// NewResolutionService 创建结算服务；badges、archiver 可为 nil
func NewResolutionService(
	db *gorm.DB,
	markets repository.MarketRepository,
	bets repository.BetRepository,
	points repository.PointsRepository,
	wins repository.WinRecordRepository,
	referrals repository.ReferralRepository,
	badges interfaces.BadgeTrigger,
	archiver interfaces.SettlementArchiver,
	cfg config.SettlementConfig,
	logger *logrus.Logger,
) *ResolutionService {
	batch := cfg.PayoutBatchSize
	if batch <= 0 {
		batch = defaultPayoutBatchSize
	}
	payoutTimeout := cfg.PayoutTimeout
	if payoutTimeout <= 0 {
		payoutTimeout = defaultPayoutTimeout
	}
	return &ResolutionService{
		db:            db,
		markets:       markets,
		bets:          bets,
		points:        points,
		wins:          wins,
		referrals:     referrals,
		badges:        badges,
		archiver:      archiver,
		batchSize:     batch,
		payoutTimeout: payoutTimeout,
		referralRate:  decimal.NewFromFloat(cfg.ReferralRate),
		logger:        logger,
		now:           time.Now,
	}
}

// ResolveMarket 结算市场。抢占失败（已被其他进程结算）返回 apperr.ErrAlreadyResolved
func (s *ResolutionService) ResolveMarket(ctx context.Context, marketID uint64, outcome bool, resolvedBy string) (*ResolveResult, error) {
	resolvedBy = strings.TrimSpace(resolvedBy)
	if resolvedBy == "" {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "resolved_by is required")
	}
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if market.Resolved {
		return nil, fmt.Errorf("market %d: %w", marketID, apperr.ErrAlreadyResolved)
	}

	// 1. 原子抢占，之后才允许计算派彩
	resolvedAt := s.now().UTC()
	claimed, err := s.markets.ClaimResolution(ctx, marketID, outcome, resolvedBy, resolvedAt)
	if err != nil {
		return nil, fmt.Errorf("抢占结算失败: %w", err)
	}
	if !claimed {
		s.logger.WithField("market_id", marketID).Info("市场已被其他进程结算")
		return nil, fmt.Errorf("market %d: %w", marketID, apperr.ErrAlreadyResolved)
	}
	s.logger.WithFields(logrus.Fields{
		"market_id":   marketID,
		"outcome":     outcome,
		"resolved_by": resolvedBy,
	}).Info("市场结算已抢占")

	// 2. 分批派彩。抢占已提交，调用方（HTTP 请求、扫描）取消后仍须派完
	payCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.payoutTimeout)
	defer cancel()
	result, participants, err := s.settle(payCtx, marketID, outcome)
	if err != nil {
		// 已抢占但未能读取下注，RetryPayouts 可补发
		return nil, fmt.Errorf("读取下注失败: %w", err)
	}

	// 3. 异步副作用
	s.triggerBadges(participants)
	s.archive(&interfaces.SettlementReport{
		MarketID:    marketID,
		Outcome:     outcome,
		ResolvedBy:  resolvedBy,
		ResolvedAt:  resolvedAt,
		TotalPool:   result.TotalPool,
		WinningPool: result.WinningPool,
		TotalPayout: result.TotalPayout,
		Winners:     result.Winners,
		FailedBets:  result.FailedBets,
	})

	s.logger.WithFields(logrus.Fields{
		"market_id":    marketID,
		"winning_bets": result.WinningBets,
		"losing_bets":  result.LosingBets,
		"total_payout": result.TotalPayout,
		"failed_bets":  len(result.FailedBets),
	}).Info("市场结算完成")
	return result, nil
}

// RetryPayouts 对已结算市场补发尚无 WinRecord 的赢家，已派彩的赢家不会重复处理
func (s *ResolutionService) RetryPayouts(ctx context.Context, marketID uint64) (*ResolveResult, error) {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if !market.Resolved || market.Outcome == nil {
		return nil, apperr.Validation(apperr.CodeMarketNotResolved, "market is not resolved yet")
	}
	result, _, err := s.settle(ctx, marketID, *market.Outcome)
	if err != nil {
		return nil, fmt.Errorf("读取下注失败: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"market_id":    marketID,
		"paid_winners": result.PaidWinners,
		"failed_bets":  len(result.FailedBets),
	}).Info("补发派彩完成")
	return result, nil
}

// settle 按批派彩，每批一个事务；某批失败只回滚该批，后续批次继续
func (s *ResolutionService) settle(ctx context.Context, marketID uint64, outcome bool) (*ResolveResult, []uint64, error) {
	bets, err := s.bets.ListByMarket(ctx, marketID)
	if err != nil {
		return nil, nil, err
	}
	result := &ResolveResult{MarketID: marketID, Outcome: outcome, ResolvedBets: len(bets)}

	var winners []*model.Bet
	seen := make(map[uint64]struct{}, len(bets))
	participants := make([]uint64, 0, len(bets))
	for _, b := range bets {
		result.TotalPool += b.Amount
		if b.Outcome == outcome {
			winners = append(winners, b)
			result.WinningPool += b.Amount
		}
		if _, ok := seen[b.UserID]; !ok {
			seen[b.UserID] = struct{}{}
			participants = append(participants, b.UserID)
		}
	}
	result.WinningBets = len(winners)
	result.LosingBets = len(bets) - len(winners)

	for start := 0; start < len(winners); start += s.batchSize {
		end := start + s.batchSize
		if end > len(winners) {
			end = len(winners)
		}
		batch := winners[start:end]

		var paid []interfaces.WinnerPayout
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			paid = paid[:0]
			for _, bet := range batch {
				p, err := s.payWinner(ctx, tx, bet, outcome, result.TotalPool, result.WinningPool)
				if err != nil {
					return fmt.Errorf("bet %d: %w", bet.ID, err)
				}
				if p != nil {
					paid = append(paid, *p)
				}
			}
			return nil
		})
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"market_id": marketID,
				"batch":     start / s.batchSize,
			}).Warn("派彩批次失败，已回滚")
			for _, bet := range batch {
				result.FailedBets = append(result.FailedBets, bet.ID)
			}
			continue
		}
		for _, p := range paid {
			result.TotalPayout += p.Payout
			result.TotalCommission += p.Commission
		}
		result.PaidWinners += len(paid)
		result.Winners = append(result.Winners, paid...)
	}
	return result, participants, nil
}

// payWinner 单个赢家的派彩，已有 WinRecord 时返回 nil
func (s *ResolutionService) payWinner(ctx context.Context, tx *gorm.DB, bet *model.Bet, outcome bool, totalPool, winningPool int64) (*interfaces.WinnerPayout, error) {
	wins := s.wins.WithTx(tx)
	points := s.points.WithTx(tx)

	exists, err := wins.Exists(ctx, bet.MarketID, bet.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	payout := bet.Amount
	if winningPool > 0 {
		payout = floorMulDiv(bet.Amount, totalPool, winningPool)
	}

	commission, err := s.payReferral(ctx, tx, bet, payout)
	if err != nil {
		return nil, err
	}

	if err := points.Credit(ctx, bet.UserID, payout); err != nil {
		return nil, fmt.Errorf("派彩入账失败: %w", err)
	}
	wonTx := &model.PointsTransaction{
		UserID:   bet.UserID,
		Type:     model.TxBetWon,
		Amount:   payout,
		MarketID: &bet.MarketID,
		Metadata: model.TxMetadata{
			MarketID:        bet.MarketID,
			BetID:           bet.ID,
			Outcome:         model.BoolPtr(outcome),
			BetAmount:       bet.Amount,
			BasePayout:      payout,
			OriginalPayout:  payout,
			NFTBonusPending: model.BoolPtr(true),
		}.JSON(),
	}
	if err := points.AddTransaction(ctx, wonTx); err != nil {
		return nil, fmt.Errorf("写入派彩流水失败: %w", err)
	}
	if err := wins.Create(ctx, &model.WinRecord{
		MarketID:            bet.MarketID,
		BetID:               bet.ID,
		UserID:              bet.UserID,
		BetAmount:           bet.Amount,
		WinAmount:           payout,
		BasePayout:          payout,
		PointsTransactionID: wonTx.ID,
		BonusStatus:         model.BonusPending,
	}); err != nil {
		return nil, fmt.Errorf("写入赢家记录失败: %w", err)
	}

	return &interfaces.WinnerPayout{
		BetID:      bet.ID,
		UserID:     bet.UserID,
		Stake:      bet.Amount,
		Payout:     payout,
		Commission: commission,
	}, nil
}

// payReferral 推荐佣金按盈利计算，不从赢家派彩中扣除；无盈利或无推荐码时跳过
func (s *ResolutionService) payReferral(ctx context.Context, tx *gorm.DB, bet *model.Bet, payout int64) (int64, error) {
	if bet.ReferralCode == nil || *bet.ReferralCode == "" {
		return 0, nil
	}
	profit := payout - bet.Amount
	if profit <= 0 {
		return 0, nil
	}
	referrals := s.referrals.WithTx(tx)
	ref, err := referrals.GetByCode(ctx, *bet.ReferralCode)
	if err != nil {
		return 0, fmt.Errorf("读取推荐码失败: %w", err)
	}
	if ref == nil || ref.ReferrerID == bet.UserID {
		return 0, nil
	}
	commission := floorMul(profit, s.referralRate)
	if commission <= 0 {
		return 0, nil
	}

	points := s.points.WithTx(tx)
	if err := points.Credit(ctx, ref.ReferrerID, commission); err != nil {
		return 0, fmt.Errorf("推荐佣金入账失败: %w", err)
	}
	if err := points.AddTransaction(ctx, &model.PointsTransaction{
		UserID:   ref.ReferrerID,
		Type:     model.TxReferralBonus,
		Amount:   commission,
		MarketID: &bet.MarketID,
		Metadata: model.TxMetadata{
			MarketID:       bet.MarketID,
			BetID:          bet.ID,
			ReferralCode:   ref.Code,
			ReferredUserID: bet.UserID,
			Profit:         profit,
		}.JSON(),
	}); err != nil {
		return 0, fmt.Errorf("写入推荐佣金流水失败: %w", err)
	}
	if err := referrals.AddCommission(ctx, ref.ID, commission); err != nil {
		return 0, fmt.Errorf("累计推荐佣金失败: %w", err)
	}
	return commission, nil
}

func (s *ResolutionService) triggerBadges(userIDs []uint64) {
	if s.badges == nil || len(userIDs) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		for _, id := range userIDs {
			if err := s.badges.Recompute(ctx, id, interfaces.BadgeEventMarketResolved); err != nil {
				s.logger.WithError(err).WithField("user_id", id).Warn("徽章重算触发失败")
			}
		}
	}()
}

func (s *ResolutionService) archive(report *interfaces.SettlementReport) {
	if s.archiver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := s.archiver.Archive(ctx, report); err != nil {
			s.logger.WithError(err).WithField("market_id", report.MarketID).Warn("结算报告归档失败")
		}
	}()
}
