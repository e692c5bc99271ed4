package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PoolSettle/internal/config"
	"PoolSettle/internal/interfaces"
	"PoolSettle/internal/model"
	"PoolSettle/internal/repository"
	"PoolSettle/internal/testutil"

	"gorm.io/gorm"
)

type testEnv struct {
	db        *gorm.DB
	markets   repository.MarketRepository
	bets      repository.BetRepository
	stats     repository.StatsRepository
	points    repository.PointsRepository
	wins      repository.WinRecordRepository
	referrals repository.ReferralRepository
	users     repository.UserRepository
	locks     repository.LockRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	return &testEnv{
		db:        db,
		markets:   repository.NewMarketRepository(db),
		bets:      repository.NewBetRepository(db),
		stats:     repository.NewStatsRepository(db),
		points:    repository.NewPointsRepository(db),
		wins:      repository.NewWinRecordRepository(db),
		referrals: repository.NewReferralRepository(db),
		users:     repository.NewUserRepository(db),
		locks:     repository.NewLockRepository(db),
	}
}

func (e *testEnv) betService() *BetService {
	return NewBetService(e.db, e.markets, e.bets, e.stats, e.points, e.referrals, testutil.NewLogger())
}

// place 在开放市场上直接下注，市场需在下注后再关闭时由调用方修改 close_time
func (e *testEnv) place(t *testing.T, userID, marketID uint64, outcome bool, amount int64) *model.Bet {
	t.Helper()
	res, err := e.betService().PlaceBet(context.Background(), &PlaceBetRequest{
		UserID: userID, MarketID: marketID, Outcome: &outcome, Amount: amount,
	})
	if err != nil {
		t.Fatalf("place bet user=%d amount=%d: %v", userID, amount, err)
	}
	return res.Bet
}

// closeMarket 把收盘时间移到过去
func (e *testEnv) closeMarket(t *testing.T, marketID uint64, at time.Time) {
	t.Helper()
	if err := e.db.Model(&model.Market{}).Where("id = ?", marketID).
		Update("close_time", at.UTC()).Error; err != nil {
		t.Fatalf("close market: %v", err)
	}
}

// fakeBadges 记录徽章重算调用
type fakeBadges struct {
	mu    sync.Mutex
	calls []uint64
	done  chan struct{}
}

func newFakeBadges() *fakeBadges {
	return &fakeBadges{done: make(chan struct{}, 64)}
}

func (f *fakeBadges) Recompute(_ context.Context, userID uint64, _ string) error {
	f.mu.Lock()
	f.calls = append(f.calls, userID)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeBadges) wait(t *testing.T, n int) []uint64 {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("badge recompute: got %d calls, want %d", i, n)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.calls...)
}

func (e *testEnv) resolutionService(badges interfaces.BadgeTrigger, archiver interfaces.SettlementArchiver) *ResolutionService {
	return NewResolutionService(e.db, e.markets, e.bets, e.points, e.wins, e.referrals, badges, archiver,
		config.SettlementConfig{PayoutBatchSize: 3, ReferralRate: 0.10}, testutil.NewLogger())
}

// failingPoints 对指定用户的入账返回错误，用于模拟单批失败
type failingPoints struct {
	repository.PointsRepository
	failUser uint64
}

func (f *failingPoints) WithTx(tx *gorm.DB) repository.PointsRepository {
	return &failingPoints{PointsRepository: f.PointsRepository.WithTx(tx), failUser: f.failUser}
}

func (f *failingPoints) Credit(ctx context.Context, userID uint64, amount int64) error {
	if userID == f.failUser {
		return errors.New("credit unavailable")
	}
	return f.PointsRepository.Credit(ctx, userID, amount)
}

// fakeArchiver 收集归档报告
type fakeArchiver struct {
	reports chan *interfaces.SettlementReport
}

func (f *fakeArchiver) Archive(_ context.Context, r *interfaces.SettlementReport) error {
	f.reports <- r
	return nil
}

// fakeLookup 按钱包返回固定倍数或错误
type fakeLookup struct {
	mu    sync.Mutex
	mults map[string]float64
	errs  map[string]error
	calls int
}

func (f *fakeLookup) GetMultiplier(_ context.Context, wallet string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[wallet]; ok {
		return 0, err
	}
	if m, ok := f.mults[wallet]; ok {
		return m, nil
	}
	return 1, nil
}

func (f *fakeLookup) set(wallet string, mult float64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.errs, wallet)
	if err != nil {
		f.errs[wallet] = err
		return
	}
	f.mults[wallet] = mult
}

func (e *testEnv) bonusService(lookup interfaces.NFTMultiplierLookup) *BonusService {
	return NewBonusService(e.db, e.markets, e.wins, e.points, e.users, lookup,
		config.SettlementConfig{BonusBatchSize: 2, BonusTimeout: time.Minute},
		config.NFTConfig{Timeout: time.Second, FallbackTimeout: time.Second, MaxMultiplier: 3},
		testutil.NewLogger())
}

// staleBets 让事务内读到的已有下注停留在旧快照，模拟并发加注已提交但本事务读取更早
type staleBets struct {
	repository.BetRepository
	snapshot *model.Bet
}

func (s *staleBets) WithTx(tx *gorm.DB) repository.BetRepository {
	return &staleBets{BetRepository: s.BetRepository.WithTx(tx), snapshot: s.snapshot}
}

func (s *staleBets) GetByUserAndMarket(ctx context.Context, userID, marketID uint64) (*model.Bet, error) {
	if s.snapshot != nil {
		cp := *s.snapshot
		return &cp, nil
	}
	return s.BetRepository.GetByUserAndMarket(ctx, userID, marketID)
}

// recordingMarkets 记录事务内市场读取方式
type recordingMarkets struct {
	repository.MarketRepository
	mu          *sync.Mutex
	lockedReads *int
	plainReads  *int
}

func newRecordingMarkets(inner repository.MarketRepository) *recordingMarkets {
	return &recordingMarkets{MarketRepository: inner, mu: &sync.Mutex{}, lockedReads: new(int), plainReads: new(int)}
}

func (r *recordingMarkets) WithTx(tx *gorm.DB) repository.MarketRepository {
	return &recordingMarkets{MarketRepository: r.MarketRepository.WithTx(tx), mu: r.mu,
		lockedReads: r.lockedReads, plainReads: r.plainReads}
}

func (r *recordingMarkets) GetByID(ctx context.Context, id uint64) (*model.Market, error) {
	r.mu.Lock()
	*r.plainReads++
	r.mu.Unlock()
	return r.MarketRepository.GetByID(ctx, id)
}

func (r *recordingMarkets) GetByIDForShare(ctx context.Context, id uint64) (*model.Market, error) {
	r.mu.Lock()
	*r.lockedReads++
	r.mu.Unlock()
	return r.MarketRepository.GetByIDForShare(ctx, id)
}

// cancelAfterClaim 抢占成功后立即取消调用方 context
type cancelAfterClaim struct {
	repository.MarketRepository
	cancel context.CancelFunc
}

func (c *cancelAfterClaim) ClaimResolution(ctx context.Context, id uint64, outcome bool, resolvedBy string, at time.Time) (bool, error) {
	ok, err := c.MarketRepository.ClaimResolution(ctx, id, outcome, resolvedBy, at)
	c.cancel()
	return ok, err
}
