package api

import (
	"net/http"
	"strconv"
	"strings"

	"PoolSettle/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// BetHandler 下注与赔率查询接口
type BetHandler struct {
	bets   *service.BetService
	logger *logrus.Logger
}

// NewBetHandler 创建 BetHandler
func NewBetHandler(bets *service.BetService, logger *logrus.Logger) *BetHandler {
	return &BetHandler{bets: bets, logger: logger}
}

// Register 注册路由
func (h *BetHandler) Register(r gin.IRouter) {
	r.POST("/api/markets/:id/bets", h.PlaceBet)
	r.GET("/api/markets/:id/odds", h.GetOdds)
	r.GET("/api/markets/:id/quote", h.Quote)
	r.GET("/api/markets/:id/stats", h.GetStats)
}

type placeBetBody struct {
	UserID       uint64 `json:"user_id"`
	Outcome      *bool  `json:"outcome"`
	Amount       int64  `json:"amount"`
	ReferralCode string `json:"referral_code"`
}

// PlaceBet 下注或同方向加注（amount 为加注后的总额）
// POST /api/markets/:id/bets
func (h *BetHandler) PlaceBet(c *gin.Context) {
	marketID, ok := marketIDParam(c)
	if !ok {
		return
	}
	var body placeBetBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	result, err := h.bets.PlaceBet(c.Request.Context(), &service.PlaceBetRequest{
		UserID:       body.UserID,
		MarketID:     marketID,
		Outcome:      body.Outcome,
		Amount:       body.Amount,
		ReferralCode: body.ReferralCode,
	})
	if err != nil {
		writeError(c, h.logger, "PlaceBet", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetOdds GET /api/markets/:id/odds
func (h *BetHandler) GetOdds(c *gin.Context) {
	marketID, ok := marketIDParam(c)
	if !ok {
		return
	}
	odds, err := h.bets.GetOdds(c.Request.Context(), marketID)
	if err != nil {
		writeError(c, h.logger, "GetOdds", err)
		return
	}
	c.JSON(http.StatusOK, odds)
}

// Quote 预计派彩
// GET /api/markets/:id/quote?outcome=yes&amount=100
func (h *BetHandler) Quote(c *gin.Context) {
	marketID, ok := marketIDParam(c)
	if !ok {
		return
	}
	outcome, ok := parseOutcome(c.Query("outcome"))
	if !ok {
		badRequest(c, "outcome must be yes or no")
		return
	}
	amount, err := strconv.ParseInt(c.Query("amount"), 10, 64)
	if err != nil {
		badRequest(c, "invalid amount")
		return
	}
	q, err := h.bets.QuotePayout(c.Request.Context(), marketID, outcome, amount)
	if err != nil {
		writeError(c, h.logger, "QuotePayout", err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// GetStats GET /api/markets/:id/stats
func (h *BetHandler) GetStats(c *gin.Context) {
	marketID, ok := marketIDParam(c)
	if !ok {
		return
	}
	stats, err := h.bets.GetStats(c.Request.Context(), marketID)
	if err != nil {
		writeError(c, h.logger, "GetStats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func parseOutcome(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1":
		return true, true
	case "no", "false", "0":
		return false, true
	}
	return false, false
}
