package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"PoolSettle/internal/config"
	"PoolSettle/internal/model"
	"PoolSettle/internal/repository"
	"PoolSettle/internal/service"
	"PoolSettle/internal/testutil"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type oneX struct{}

func (oneX) GetMultiplier(context.Context, string) (float64, error) { return 1, nil }

type noOracle struct{}

func (noOracle) GetPriceNear(context.Context, string, time.Time) (float64, error) { return 0, nil }
func (noOracle) GetCurrentPrice(context.Context, string) (float64, error)         { return 0, nil }
func (noOracle) SourceURL(string, time.Time) string                              { return "" }

func newRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	logger := testutil.NewLogger()

	markets := repository.NewMarketRepository(db)
	bets := repository.NewBetRepository(db)
	points := repository.NewPointsRepository(db)
	wins := repository.NewWinRecordRepository(db)
	referrals := repository.NewReferralRepository(db)

	betSvc := service.NewBetService(db, markets, bets, repository.NewStatsRepository(db), points, referrals, logger)
	resolver := service.NewResolutionService(db, markets, bets, points, wins, referrals,
		service.NewLogBadgeTrigger(logger), nil, config.SettlementConfig{PayoutBatchSize: 3, ReferralRate: 0.1}, logger)
	bonuses := service.NewBonusService(db, markets, wins, points, repository.NewUserRepository(db), oneX{},
		config.SettlementConfig{BonusTimeout: time.Second}, config.NFTConfig{MaxMultiplier: 3}, logger)
	auto := service.NewAutoResolveService(repository.NewLockRepository(db), markets, noOracle{}, resolver, bonuses,
		config.AutoResolveConfig{LockTTL: time.Minute, Grace: time.Minute}, logger)

	r := gin.New()
	r.Use(RequestTimeout(5*time.Second), AccessLog(logger))
	RegisterHealth(r, db)
	NewBetHandler(betSvc, logger).Register(r)
	NewSettlementHandler(resolver, bonuses, auto, logger).Register(r)
	return r, db
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	out := map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func marketPath(id uint64, suffix string) string {
	return "/api/markets/" + strconv.FormatUint(id, 10) + suffix
}

func adminPath(id uint64, suffix string) string {
	return "/api/admin/markets/" + strconv.FormatUint(id, 10) + suffix
}

func TestHealthz(t *testing.T) {
	r, _ := newRouter(t)
	w, body := do(t, r, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz = %d %v", w.Code, body)
	}
}

func TestPlaceBetAndOdds(t *testing.T) {
	r, db := newRouter(t)
	u := testutil.SeedUser(t, db, "0xaaa", 1000)
	m := testutil.SeedMarket(t, db, time.Now().Add(time.Hour), 0)

	w, body := do(t, r, http.MethodPost, marketPath(m.ID, "/bets"), map[string]any{
		"user_id": u.ID, "outcome": true, "amount": 300,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("place bet = %d %s", w.Code, w.Body.String())
	}
	if body["topped_up"] != false {
		t.Errorf("topped_up = %v", body["topped_up"])
	}

	w, body = do(t, r, http.MethodGet, marketPath(m.ID, "/odds"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("odds = %d", w.Code)
	}
	if body["total_pool"].(float64) != 300 || body["yes_percent"].(float64) != 100 {
		t.Errorf("odds = %v", body)
	}

	w, body = do(t, r, http.MethodGet, marketPath(m.ID, "/quote?outcome=no&amount=100"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("quote = %d %s", w.Code, w.Body.String())
	}
	if body["potential_payout"].(float64) != 400 {
		t.Errorf("potential payout = %v, want 400", body["potential_payout"])
	}
}

func TestPlaceBetErrorMapping(t *testing.T) {
	r, db := newRouter(t)
	u := testutil.SeedUser(t, db, "0xaaa", 100)
	open := testutil.SeedMarket(t, db, time.Now().Add(time.Hour), 0)

	cases := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"bad id", "/api/markets/abc/bets", map[string]any{"user_id": u.ID, "outcome": true, "amount": 10}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing outcome", marketPath(open.ID, "/bets"), map[string]any{"user_id": u.ID, "amount": 10}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"insufficient", marketPath(open.ID, "/bets"), map[string]any{"user_id": u.ID, "outcome": true, "amount": 500}, http.StatusBadRequest, "INSUFFICIENT_BALANCE"},
		{"unknown market", marketPath(9999, "/bets"), map[string]any{"user_id": u.ID, "outcome": true, "amount": 10}, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, body := do(t, r, http.MethodPost, tc.path, tc.body)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.status, w.Body.String())
			}
			if body["code"] != tc.code {
				t.Errorf("code = %v, want %s", body["code"], tc.code)
			}
		})
	}
}

func TestQuoteRejectsBadOutcome(t *testing.T) {
	r, db := newRouter(t)
	m := testutil.SeedMarket(t, db, time.Now().Add(time.Hour), 0)
	w, _ := do(t, r, http.MethodGet, marketPath(m.ID, "/quote?outcome=maybe&amount=10"), nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestResolveFlow(t *testing.T) {
	r, db := newRouter(t)
	yes := testutil.SeedUser(t, db, "0xaaa", 1000)
	no := testutil.SeedUser(t, db, "0xbbb", 1000)
	m := testutil.SeedMarket(t, db, time.Now().Add(time.Hour), 0)

	for _, b := range []struct {
		user    uint64
		outcome bool
	}{{yes.ID, true}, {no.ID, false}} {
		w, _ := do(t, r, http.MethodPost, marketPath(m.ID, "/bets"), map[string]any{
			"user_id": b.user, "outcome": b.outcome, "amount": 100,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("bet = %d %s", w.Code, w.Body.String())
		}
	}
	if err := db.Model(&model.Market{}).Where("id = ?", m.ID).
		Update("close_time", time.Now().Add(-time.Minute).UTC()).Error; err != nil {
		t.Fatalf("close: %v", err)
	}

	resolvePath := adminPath(m.ID, "/resolve")
	w, _ := do(t, r, http.MethodPost, resolvePath, map[string]any{"resolved_by": "admin"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing outcome = %d", w.Code)
	}

	w, body := do(t, r, http.MethodPost, resolvePath, map[string]any{"outcome": true, "resolved_by": "admin"})
	if w.Code != http.StatusOK {
		t.Fatalf("resolve = %d %s", w.Code, w.Body.String())
	}
	if body["total_payout"].(float64) != 200 {
		t.Errorf("total payout = %v, want 200", body["total_payout"])
	}

	w, body = do(t, r, http.MethodPost, resolvePath, map[string]any{"outcome": false, "resolved_by": "admin"})
	if w.Code != http.StatusConflict || body["code"] != "ALREADY_RESOLVED" {
		t.Fatalf("second resolve = %d %v", w.Code, body)
	}

	w, body = do(t, r, http.MethodPost, adminPath(m.ID, "/bonuses"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("bonuses = %d %s", w.Code, w.Body.String())
	}
	if body["market_id"].(float64) != float64(m.ID) {
		t.Errorf("bonus result = %v", body)
	}

	w, _ = do(t, r, http.MethodPost, adminPath(m.ID, "/payouts/retry"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("retry = %d %s", w.Code, w.Body.String())
	}
	// 等待后台加成结束，避免与临时库清理竞争
	time.Sleep(100 * time.Millisecond)
}

func TestRetryPayoutsRequiresResolved(t *testing.T) {
	r, db := newRouter(t)
	m := testutil.SeedMarket(t, db, time.Now().Add(time.Hour), 0)
	w, body := do(t, r, http.MethodPost, adminPath(m.ID, "/payouts/retry"), nil)
	if w.Code != http.StatusBadRequest || body["code"] != "MARKET_NOT_RESOLVED" {
		t.Fatalf("retry = %d %v", w.Code, body)
	}
}

func TestRunAutoResolveEmpty(t *testing.T) {
	r, _ := newRouter(t)
	w, body := do(t, r, http.MethodPost, "/api/admin/auto-resolve/run", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("run = %d %s", w.Code, w.Body.String())
	}
	if results, ok := body["results"].([]any); !ok || len(results) != 0 {
		t.Errorf("results = %v", body["results"])
	}
}
