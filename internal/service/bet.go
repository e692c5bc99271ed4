package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"PoolSettle/internal/apperr"
	"PoolSettle/internal/model"
	"PoolSettle/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PlaceBetResult 下注结果，Odds/Stats 为写入后的资金池状态
type PlaceBetResult struct {
	Bet      *model.Bet         `json:"bet"`
	Odds     ParimutuelOdds     `json:"odds"`
	Stats    *model.MarketStats `json:"stats"`
	ToppedUp bool               `json:"topped_up"`
}

// BetService 下注记账：校验、扣款、写下注、维护资金池，全部在一个事务内完成
type BetService struct {
	db        *gorm.DB
	markets   repository.MarketRepository
	bets      repository.BetRepository
	stats     repository.StatsRepository
	points    repository.PointsRepository
	referrals repository.ReferralRepository
	validator *BetValidator
	logger    *logrus.Logger
	now       func() time.Time
}

// NewBetService 创建下注服务
func NewBetService(
	db *gorm.DB,
	markets repository.MarketRepository,
	bets repository.BetRepository,
	stats repository.StatsRepository,
	points repository.PointsRepository,
	referrals repository.ReferralRepository,
	logger *logrus.Logger,
) *BetService {
	return &BetService{
		db:        db,
		markets:   markets,
		bets:      bets,
		stats:     stats,
		points:    points,
		referrals: referrals,
		validator: NewBetValidator(),
		logger:    logger,
		now:       time.Now,
	}
}

// PlaceBet 新下注或同方向加注
func (s *BetService) PlaceBet(ctx context.Context, req *PlaceBetRequest) (*PlaceBetResult, error) {
	if err := s.validator.ValidateShape(req); err != nil {
		return nil, err
	}
	req.ReferralCode = strings.TrimSpace(req.ReferralCode)
	outcome := *req.Outcome
	now := s.now().UTC()

	var result *PlaceBetResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		markets := s.markets.WithTx(tx)
		bets := s.bets.WithTx(tx)
		stats := s.stats.WithTx(tx)
		points := s.points.WithTx(tx)

		// 1. 读取当前状态并校验；市场行加共享锁，与结算抢占互斥
		market, err := markets.GetByIDForShare(ctx, req.MarketID)
		if err != nil {
			return err
		}
		account, err := points.GetAccount(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("读取积分账户失败: %w", err)
		}
		var balance int64
		if account != nil {
			balance = account.Balance
		}
		existing, err := bets.GetByUserAndMarket(ctx, req.UserID, req.MarketID)
		if err != nil {
			return fmt.Errorf("读取已有下注失败: %w", err)
		}
		if err := s.validator.Validate(req, &BetContext{Market: market, Balance: balance, Existing: existing, Now: now}); err != nil {
			return err
		}

		// 2. 扣款、写下注与流水
		var (
			bet       *model.Bet
			oldAmount int64
		)
		if existing != nil {
			delta := req.Amount - existing.Amount
			oldAmount = existing.Amount
			// 条件更新先行：金额已被并发加注改动时整笔回滚
			if err := bets.UpdateAmount(ctx, existing.ID, oldAmount, req.Amount); err != nil {
				if apperr.IsConflict(err) {
					return err
				}
				return fmt.Errorf("更新下注金额失败: %w", err)
			}
			if err := points.Debit(ctx, req.UserID, delta); err != nil {
				return err
			}
			if err := points.AddTransaction(ctx, &model.PointsTransaction{
				UserID:   req.UserID,
				Type:     model.TxBetUpdated,
				Amount:   -delta,
				MarketID: &market.ID,
				Metadata: model.TxMetadata{
					MarketID:       market.ID,
					BetID:          existing.ID,
					Outcome:        model.BoolPtr(outcome),
					BetAmount:      req.Amount,
					PreviousAmount: existing.Amount,
				}.JSON(),
			}); err != nil {
				return fmt.Errorf("写入加注流水失败: %w", err)
			}
			existing.Amount = req.Amount
			bet = existing
		} else {
			if err := points.Debit(ctx, req.UserID, req.Amount); err != nil {
				return err
			}
			referral, err := s.lookupReferral(ctx, tx, req)
			if err != nil {
				return err
			}
			bet = &model.Bet{UserID: req.UserID, MarketID: market.ID, Outcome: outcome, Amount: req.Amount}
			if referral != nil {
				code := referral.Code
				bet.ReferralCode = &code
			}
			if err := bets.Create(ctx, bet); err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return apperr.Conflict(apperr.CodeBetConflict, "concurrent bet on the same market, refresh and retry")
				}
				return fmt.Errorf("写入下注失败: %w", err)
			}
			meta := model.TxMetadata{
				MarketID:  market.ID,
				BetID:     bet.ID,
				Outcome:   model.BoolPtr(outcome),
				BetAmount: req.Amount,
			}
			if referral != nil {
				meta.ReferralCode = referral.Code
			}
			if err := points.AddTransaction(ctx, &model.PointsTransaction{
				UserID:   req.UserID,
				Type:     model.TxBetPlaced,
				Amount:   -req.Amount,
				MarketID: &market.ID,
				Metadata: meta.JSON(),
			}); err != nil {
				return fmt.Errorf("写入下注流水失败: %w", err)
			}
			if referral != nil {
				if err := s.referrals.WithTx(tx).IncrementUsage(ctx, referral.ID); err != nil {
					return fmt.Errorf("更新推荐码使用次数失败: %w", err)
				}
			}
		}

		// 3. 资金池：先减旧贡献再加新金额，并追加走势采样
		st, err := stats.ApplyStake(ctx, market.ID, outcome, oldAmount, req.Amount)
		if err != nil {
			return err
		}
		if err := stats.AppendTrend(ctx, &model.PriceTrend{
			MarketID:   market.ID,
			YesPercent: st.CurrentPrice * 100,
			Volume:     st.Volume,
			SampledAt:  now,
		}); err != nil {
			return fmt.Errorf("写入价格走势失败: %w", err)
		}

		result = &PlaceBetResult{
			Bet:      bet,
			Odds:     CalculateOdds(st.YesPool, st.NoPool),
			Stats:    st,
			ToppedUp: existing != nil,
		}
		return nil
	})
	if err != nil {
		if apperr.IsValidation(err) || apperr.IsNotFound(err) || apperr.IsConflict(err) {
			s.logger.WithFields(logrus.Fields{
				"user_id":   req.UserID,
				"market_id": req.MarketID,
				"code":      apperr.CodeOf(err),
			}).Debug("下注被拒绝")
			return nil, err
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":   req.UserID,
			"market_id": req.MarketID,
		}).Error("PlaceBet failed")
		return nil, fmt.Errorf("下注失败: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":   req.UserID,
		"market_id": req.MarketID,
		"bet_id":    result.Bet.ID,
		"amount":    req.Amount,
		"top_up":    result.ToppedUp,
	}).Info("下注成功")
	return result, nil
}

// lookupReferral 未知推荐码或自己的推荐码直接忽略
func (s *BetService) lookupReferral(ctx context.Context, tx *gorm.DB, req *PlaceBetRequest) (*model.Referral, error) {
	if req.ReferralCode == "" {
		return nil, nil
	}
	ref, err := s.referrals.WithTx(tx).GetByCode(ctx, req.ReferralCode)
	if err != nil {
		return nil, fmt.Errorf("读取推荐码失败: %w", err)
	}
	if ref == nil || ref.ReferrerID == req.UserID {
		return nil, nil
	}
	return ref, nil
}

// GetOdds 按当前资金池计算赔率
func (s *BetService) GetOdds(ctx context.Context, marketID uint64) (ParimutuelOdds, error) {
	if _, err := s.markets.GetByID(ctx, marketID); err != nil {
		return ParimutuelOdds{}, err
	}
	st, err := s.stats.Get(ctx, marketID)
	if err != nil {
		return ParimutuelOdds{}, err
	}
	return CalculateOdds(st.YesPool, st.NoPool), nil
}

// QuotePayout 计算假设再下注 amount 后的预计派彩
func (s *BetService) QuotePayout(ctx context.Context, marketID uint64, outcome bool, amount int64) (*PayoutQuote, error) {
	if amount <= 0 {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "amount must be positive")
	}
	if _, err := s.markets.GetByID(ctx, marketID); err != nil {
		return nil, err
	}
	st, err := s.stats.Get(ctx, marketID)
	if err != nil {
		return nil, err
	}
	q := QuotePayout(st.YesPool, st.NoPool, amount, outcome)
	return &q, nil
}

// GetStats 资金池聚合
func (s *BetService) GetStats(ctx context.Context, marketID uint64) (*model.MarketStats, error) {
	if _, err := s.markets.GetByID(ctx, marketID); err != nil {
		return nil, err
	}
	return s.stats.Get(ctx, marketID)
}
