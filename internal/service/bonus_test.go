package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"PoolSettle/internal/apperr"
	"PoolSettle/internal/model"
	"PoolSettle/internal/testutil"
)

// resolvedMarket 三个赢家各下注 100 YES，输家 300 NO，每个赢家派彩 200
func resolvedMarket(t *testing.T, env *testEnv) (*model.Market, []*model.User) {
	t.Helper()
	market := testutil.SeedMarket(t, env.db, time.Now().Add(time.Hour), 0)
	var winners []*model.User
	for _, w := range []string{"0xa", "0xb", "0xc"} {
		u := testutil.SeedUser(t, env.db, w, 1000)
		env.place(t, u.ID, market.ID, true, 100)
		winners = append(winners, u)
	}
	loser := testutil.SeedUser(t, env.db, "0xd", 1000)
	env.place(t, loser.ID, market.ID, false, 300)
	if _, err := env.resolutionService(nil, nil).ResolveMarket(context.Background(), market.ID, true, "admin:1"); err != nil {
		t.Fatalf("ResolveMarket: %v", err)
	}
	return market, winners
}

func winRecordOf(t *testing.T, env *testEnv, marketID, userID uint64) *model.WinRecord {
	t.Helper()
	recs, err := env.wins.ListByMarket(context.Background(), marketID)
	if err != nil {
		t.Fatalf("ListByMarket: %v", err)
	}
	for _, r := range recs {
		if r.UserID == userID {
			return r
		}
	}
	t.Fatalf("no win record for user %d", userID)
	return nil
}

func pendingMeta(t *testing.T, env *testEnv, rec *model.WinRecord) model.TxMetadata {
	t.Helper()
	pt, err := env.points.GetTransaction(context.Background(), rec.PointsTransactionID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	meta, err := model.ParseTxMetadata(pt.Metadata)
	if err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	return meta
}

func TestApplyBonuses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	market, winners := resolvedMarket(t, env)
	a, b, c := winners[0], winners[1], winners[2]

	lookup := &fakeLookup{
		mults: map[string]float64{"0xa": 1.5, "0xb": 1},
		errs:  map[string]error{"0xc": errors.New("rpc timeout")},
	}
	svc := env.bonusService(lookup)

	res, err := svc.ApplyBonuses(ctx, market.ID)
	if err != nil {
		t.Fatalf("ApplyBonuses: %v", err)
	}
	if res.ProcessedUsers != 2 || res.AppliedUsers != 1 || res.TotalBonusDistributed != 100 {
		t.Errorf("result = %+v", res)
	}
	if len(res.FailedUsers) != 1 || res.FailedUsers[0] != c.ID {
		t.Errorf("failed users = %v, want [%d]", res.FailedUsers, c.ID)
	}

	// A：floor(200*1.5) = 300，加成 100
	if got := testutil.Balance(t, env.db, a.ID); got != 1200 {
		t.Errorf("a balance = %d, want 1200", got)
	}
	recA := winRecordOf(t, env, market.ID, a.ID)
	if recA.BonusStatus != model.BonusApplied || recA.WinAmount != 300 || recA.BonusAmount != 100 {
		t.Errorf("a win record = %+v", recA)
	}
	metaA := pendingMeta(t, env, recA)
	if metaA.NFTBonusPending == nil || *metaA.NFTBonusPending || metaA.NFTBonusApplied == nil || !*metaA.NFTBonusApplied ||
		metaA.NFTMultiplier == nil || *metaA.NFTMultiplier != 1.5 {
		t.Errorf("a pending metadata = %+v", metaA)
	}
	bonusTxs, err := env.points.ListTransactions(ctx, a.ID, model.TxNFTBonus)
	if err != nil || len(bonusTxs) != 1 || bonusTxs[0].Amount != 100 {
		t.Fatalf("a bonus txs = %+v, err = %v", bonusTxs, err)
	}

	// B：倍数 1，无加成
	recB := winRecordOf(t, env, market.ID, b.ID)
	if recB.BonusStatus != model.BonusNone || recB.WinAmount != 200 {
		t.Errorf("b win record = %+v", recB)
	}
	metaB := pendingMeta(t, env, recB)
	if metaB.NFTBonusPending == nil || *metaB.NFTBonusPending || metaB.NFTBonusApplied == nil || *metaB.NFTBonusApplied {
		t.Errorf("b pending metadata = %+v", metaB)
	}

	// C：查询失败，win_amount 不变，保留待处理标记
	recC := winRecordOf(t, env, market.ID, c.ID)
	if recC.BonusStatus != model.BonusFailed || recC.WinAmount != 200 || recC.BonusError == nil {
		t.Errorf("c win record = %+v", recC)
	}
	metaC := pendingMeta(t, env, recC)
	if metaC.NFTBonusPending == nil || !*metaC.NFTBonusPending || metaC.NFTBonusError != "rpc timeout" {
		t.Errorf("c pending metadata = %+v", metaC)
	}

	// 重试：只处理 C
	lookup.set("0xc", 2, nil)
	res, err = svc.ApplyBonuses(ctx, market.ID)
	if err != nil {
		t.Fatalf("ApplyBonuses retry: %v", err)
	}
	if res.ProcessedUsers != 1 || res.SkippedUsers != 2 || res.TotalBonusDistributed != 200 || len(res.FailedUsers) != 0 {
		t.Errorf("retry result = %+v", res)
	}
	if got := testutil.Balance(t, env.db, c.ID); got != 1300 {
		t.Errorf("c balance = %d, want 1300", got)
	}
	if metaC = pendingMeta(t, env, winRecordOf(t, env, market.ID, c.ID)); metaC.NFTBonusError != "" {
		t.Errorf("c error not cleared: %+v", metaC)
	}
}

func TestApplyBonusesIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	market, winners := resolvedMarket(t, env)
	lookup := &fakeLookup{mults: map[string]float64{"0xa": 2, "0xb": 1.25, "0xc": 1}, errs: map[string]error{}}
	svc := env.bonusService(lookup)

	if _, err := svc.ApplyBonuses(ctx, market.ID); err != nil {
		t.Fatalf("ApplyBonuses: %v", err)
	}
	balances := make(map[uint64]int64)
	amounts := make(map[uint64]int64)
	for _, u := range winners {
		balances[u.ID] = testutil.Balance(t, env.db, u.ID)
		amounts[u.ID] = winRecordOf(t, env, market.ID, u.ID).WinAmount
	}
	callsAfterFirst := lookup.calls

	res, err := svc.ApplyBonuses(ctx, market.ID)
	if err != nil {
		t.Fatalf("ApplyBonuses again: %v", err)
	}
	if res.ProcessedUsers != 0 || res.TotalBonusDistributed != 0 || res.SkippedUsers != 3 {
		t.Errorf("second pass = %+v", res)
	}
	if lookup.calls != callsAfterFirst {
		t.Errorf("second pass called lookup %d times", lookup.calls-callsAfterFirst)
	}
	for _, u := range winners {
		if got := testutil.Balance(t, env.db, u.ID); got != balances[u.ID] {
			t.Errorf("user %d balance changed: %d -> %d", u.ID, balances[u.ID], got)
		}
		if got := winRecordOf(t, env, market.ID, u.ID).WinAmount; got != amounts[u.ID] {
			t.Errorf("user %d win amount changed: %d -> %d", u.ID, amounts[u.ID], got)
		}
	}
}

func TestApplyBonusesCapsMultiplier(t *testing.T) {
	env := newTestEnv(t)
	market, winners := resolvedMarket(t, env)
	lookup := &fakeLookup{mults: map[string]float64{"0xa": 10}, errs: map[string]error{}}

	res, err := env.bonusService(lookup).ApplyBonuses(context.Background(), market.ID)
	if err != nil {
		t.Fatalf("ApplyBonuses: %v", err)
	}
	// 上限 3 倍：floor(200*3) - 200 = 400
	if res.TotalBonusDistributed != 400 {
		t.Errorf("total bonus = %d, want 400", res.TotalBonusDistributed)
	}
	rec := winRecordOf(t, env, market.ID, winners[0].ID)
	if rec.BonusMultiplier == nil || *rec.BonusMultiplier != 3 {
		t.Errorf("multiplier = %v, want 3", rec.BonusMultiplier)
	}
}

func TestApplyBonusesRequiresResolvedMarket(t *testing.T) {
	env := newTestEnv(t)
	market := testutil.SeedMarket(t, env.db, time.Now().Add(time.Hour), 0)
	_, err := env.bonusService(&fakeLookup{}).ApplyBonuses(context.Background(), market.ID)
	if apperr.CodeOf(err) != apperr.CodeMarketNotResolved {
		t.Fatalf("err = %v, want market not resolved", err)
	}
}
