package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PoolSettle/internal/apperr"
	"PoolSettle/internal/config"
	"PoolSettle/internal/interfaces"
	"PoolSettle/internal/model"
	"PoolSettle/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultBonusBatchSize   = 3
	defaultBonusUserTimeout = 6 * time.Second
	defaultBonusTimeout     = 2 * time.Minute
)

// BonusResult NFT 加成汇总
type BonusResult struct {
	MarketID              uint64   `json:"market_id"`
	ProcessedUsers        int      `json:"processed_users"`
	AppliedUsers          int      `json:"applied_users"`
	SkippedUsers          int      `json:"skipped_users"`
	FailedUsers           []uint64 `json:"failed_users"`
	TotalBonusDistributed int64    `json:"total_bonus_distributed"`
}

type bonusOutcome int

const (
	bonusOutcomeNone bonusOutcome = iota
	bonusOutcomeApplied
	bonusOutcomeSkipped
	bonusOutcomeFailed
)

// BonusService 结算后的 NFT 加成。以 WinRecord.bonus_status 的条件更新保证重复执行无副作用
type BonusService struct {
	db            *gorm.DB
	markets       repository.MarketRepository
	wins          repository.WinRecordRepository
	points        repository.PointsRepository
	users         repository.UserRepository
	lookup        interfaces.NFTMultiplierLookup
	batchSize     int
	userTimeout   time.Duration
	asyncTimeout  time.Duration
	maxMultiplier float64
	logger        *logrus.Logger
}

// NewBonusService 创建加成服务
func NewBonusService(
	db *gorm.DB,
	markets repository.MarketRepository,
	wins repository.WinRecordRepository,
	points repository.PointsRepository,
	users repository.UserRepository,
	lookup interfaces.NFTMultiplierLookup,
	settlement config.SettlementConfig,
	nftCfg config.NFTConfig,
	logger *logrus.Logger,
) *BonusService {
	s := &BonusService{
		db:            db,
		markets:       markets,
		wins:          wins,
		points:        points,
		users:         users,
		lookup:        lookup,
		batchSize:     settlement.BonusBatchSize,
		userTimeout:   nftCfg.Timeout + nftCfg.FallbackTimeout,
		asyncTimeout:  settlement.BonusTimeout,
		maxMultiplier: nftCfg.MaxMultiplier,
		logger:        logger,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBonusBatchSize
	}
	if s.userTimeout <= 0 {
		s.userTimeout = defaultBonusUserTimeout
	}
	if s.asyncTimeout <= 0 {
		s.asyncTimeout = defaultBonusTimeout
	}
	return s
}

// ApplyBonuses 对市场中尚未终结的赢家记录执行 NFT 加成，可重复调用
func (s *BonusService) ApplyBonuses(ctx context.Context, marketID uint64) (*BonusResult, error) {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if !market.Resolved {
		return nil, apperr.Validation(apperr.CodeMarketNotResolved, "market is not resolved yet")
	}

	records, err := s.wins.ListByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("读取赢家记录失败: %w", err)
	}
	result := &BonusResult{MarketID: marketID, FailedUsers: []uint64{}}

	open := make([]*model.WinRecord, 0, len(records))
	userIDs := make([]uint64, 0, len(records))
	for _, rec := range records {
		if rec.BonusStatus.Final() {
			result.SkippedUsers++
			continue
		}
		open = append(open, rec)
		userIDs = append(userIDs, rec.UserID)
	}
	if len(open) == 0 {
		return result, nil
	}

	wallets, err := s.users.WalletsByIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("读取钱包地址失败: %w", err)
	}

	var mu sync.Mutex
	for start := 0; start < len(open); start += s.batchSize {
		end := start + s.batchSize
		if end > len(open) {
			end = len(open)
		}
		var g errgroup.Group
		for _, rec := range open[start:end] {
			g.Go(func() error {
				outcome, bonus := s.applyOne(ctx, rec, wallets[rec.UserID])
				mu.Lock()
				defer mu.Unlock()
				switch outcome {
				case bonusOutcomeApplied:
					result.ProcessedUsers++
					result.AppliedUsers++
					result.TotalBonusDistributed += bonus
				case bonusOutcomeNone:
					result.ProcessedUsers++
				case bonusOutcomeSkipped:
					result.SkippedUsers++
				case bonusOutcomeFailed:
					result.FailedUsers = append(result.FailedUsers, rec.UserID)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	s.logger.WithFields(logrus.Fields{
		"market_id":       marketID,
		"processed_users": result.ProcessedUsers,
		"applied_users":   result.AppliedUsers,
		"failed_users":    len(result.FailedUsers),
		"total_bonus":     result.TotalBonusDistributed,
	}).Info("NFT 加成处理完成")
	return result, nil
}

// ApplyBonusesAsync 后台执行加成，调用方不等待；失败只记录日志
func (s *BonusService) ApplyBonusesAsync(marketID uint64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.asyncTimeout)
		defer cancel()
		if _, err := s.ApplyBonuses(ctx, marketID); err != nil {
			s.logger.WithError(err).WithField("market_id", marketID).Warn("后台 NFT 加成失败")
		}
	}()
}

// applyOne 单个赢家：查询倍数（独立超时）后在自己的事务内落账
func (s *BonusService) applyOne(ctx context.Context, rec *model.WinRecord, wallet string) (bonusOutcome, int64) {
	log := s.logger.WithFields(logrus.Fields{"market_id": rec.MarketID, "user_id": rec.UserID})

	multiplier := 1.0
	if wallet != "" {
		lookupCtx, cancel := context.WithTimeout(ctx, s.userTimeout)
		m, err := s.lookup.GetMultiplier(lookupCtx, wallet)
		cancel()
		if err != nil {
			log.WithError(err).Warn("NFT 倍数查询失败，等待下次重试")
			if ferr := s.markFailed(ctx, rec, err.Error()); ferr != nil {
				log.WithError(ferr).Warn("记录加成失败状态失败")
			}
			return bonusOutcomeFailed, 0
		}
		multiplier = m
	}
	if s.maxMultiplier > 1 && multiplier > s.maxMultiplier {
		multiplier = s.maxMultiplier
	}

	base := rec.BasePayout
	var newPayout int64
	if multiplier > 1 {
		newPayout = floorMul(base, decimal.NewFromFloat(multiplier))
	}
	if newPayout <= base {
		return s.finalizeNoBonus(ctx, rec, multiplier, log)
	}
	return s.finalizeApplied(ctx, rec, multiplier, newPayout, log)
}

func (s *BonusService) finalizeNoBonus(ctx context.Context, rec *model.WinRecord, multiplier float64, log *logrus.Entry) (bonusOutcome, int64) {
	outcome := bonusOutcomeNone
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.wins.WithTx(tx).FinalizeBonus(ctx, rec.ID, model.BonusNone, multiplier, rec.WinAmount, 0)
		if err != nil {
			return err
		}
		if !ok {
			outcome = bonusOutcomeSkipped
			return nil
		}
		return s.updatePendingMetadata(ctx, tx, rec.PointsTransactionID, func(m *model.TxMetadata) {
			m.NFTBonusPending = model.BoolPtr(false)
			m.NFTBonusApplied = model.BoolPtr(false)
			m.NFTMultiplier = &multiplier
			m.NFTBonusError = ""
		})
	})
	if err != nil {
		log.WithError(err).Warn("写入无加成状态失败")
		return bonusOutcomeFailed, 0
	}
	return outcome, 0
}

func (s *BonusService) finalizeApplied(ctx context.Context, rec *model.WinRecord, multiplier float64, newPayout int64, log *logrus.Entry) (bonusOutcome, int64) {
	bonus := newPayout - rec.BasePayout
	outcome := bonusOutcomeApplied
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.wins.WithTx(tx).FinalizeBonus(ctx, rec.ID, model.BonusApplied, multiplier, newPayout, bonus)
		if err != nil {
			return err
		}
		if !ok {
			outcome = bonusOutcomeSkipped
			return nil
		}
		points := s.points.WithTx(tx)
		if err := points.Credit(ctx, rec.UserID, bonus); err != nil {
			return fmt.Errorf("加成入账失败: %w", err)
		}
		if err := points.AddTransaction(ctx, &model.PointsTransaction{
			UserID:   rec.UserID,
			Type:     model.TxNFTBonus,
			Amount:   bonus,
			MarketID: &rec.MarketID,
			Metadata: model.TxMetadata{
				MarketID:       rec.MarketID,
				BetID:          rec.BetID,
				BasePayout:     rec.BasePayout,
				OriginalPayout: rec.BasePayout,
				NFTMultiplier:  &multiplier,
				NFTBonusAmount: bonus,
			}.JSON(),
		}); err != nil {
			return fmt.Errorf("写入加成流水失败: %w", err)
		}
		return s.updatePendingMetadata(ctx, tx, rec.PointsTransactionID, func(m *model.TxMetadata) {
			m.NFTBonusPending = model.BoolPtr(false)
			m.NFTBonusApplied = model.BoolPtr(true)
			m.NFTMultiplier = &multiplier
			m.NFTBonusAmount = bonus
			m.NFTBonusError = ""
		})
	})
	if err != nil {
		log.WithError(err).Warn("NFT 加成事务失败，已回滚")
		return bonusOutcomeFailed, 0
	}
	if outcome == bonusOutcomeApplied {
		log.WithFields(logrus.Fields{"multiplier": multiplier, "bonus": bonus}).Info("NFT 加成已发放")
		return outcome, bonus
	}
	return outcome, 0
}

// markFailed 记录失败原因，win_amount 不变，待处理标记保留
func (s *BonusService) markFailed(ctx context.Context, rec *model.WinRecord, msg string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.wins.WithTx(tx).MarkBonusFailed(ctx, rec.ID, msg)
		if err != nil || !ok {
			return err
		}
		return s.updatePendingMetadata(ctx, tx, rec.PointsTransactionID, func(m *model.TxMetadata) {
			m.NFTBonusError = msg
		})
	})
}

func (s *BonusService) updatePendingMetadata(ctx context.Context, tx *gorm.DB, txID uint64, mutate func(*model.TxMetadata)) error {
	if txID == 0 {
		return nil
	}
	points := s.points.WithTx(tx)
	pt, err := points.GetTransaction(ctx, txID)
	if err != nil {
		return fmt.Errorf("读取派彩流水失败: %w", err)
	}
	meta, err := model.ParseTxMetadata(pt.Metadata)
	if err != nil {
		return fmt.Errorf("解析派彩流水 metadata 失败: %w", err)
	}
	mutate(&meta)
	return points.UpdateTransactionMetadata(ctx, txID, meta.JSON())
}
