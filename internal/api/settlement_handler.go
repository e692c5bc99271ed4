package api

import (
	"net/http"

	"PoolSettle/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SettlementHandler 管理端结算接口：手动结算、NFT 加成、补发派彩、触发自动结算
type SettlementHandler struct {
	resolver    *service.ResolutionService
	bonuses     *service.BonusService
	autoResolve *service.AutoResolveService
	logger      *logrus.Logger
}

func NewSettlementHandler(
	resolver *service.ResolutionService,
	bonuses *service.BonusService,
	autoResolve *service.AutoResolveService,
	logger *logrus.Logger,
) *SettlementHandler {
	return &SettlementHandler{resolver: resolver, bonuses: bonuses, autoResolve: autoResolve, logger: logger}
}

func (h *SettlementHandler) Register(r gin.IRouter) {
	admin := r.Group("/api/admin")
	admin.POST("/markets/:id/resolve", h.Resolve)
	admin.POST("/markets/:id/bonuses", h.ApplyBonuses)
	admin.POST("/markets/:id/payouts/retry", h.RetryPayouts)
	admin.POST("/auto-resolve/run", h.RunAutoResolve)
}

type resolveBody struct {
	Outcome    *bool  `json:"outcome"`
	ResolvedBy string `json:"resolved_by"`
}

// Resolve 结算成功后在后台触发 NFT 加成，不阻塞响应
// POST /api/admin/markets/:id/resolve
func (h *SettlementHandler) Resolve(c *gin.Context) {
	marketID, ok := marketIDParam(c)
	if !ok {
		return
	}
	var body resolveBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Outcome == nil {
		badRequest(c, "outcome is required")
		return
	}
	result, err := h.resolver.ResolveMarket(c.Request.Context(), marketID, *body.Outcome, body.ResolvedBy)
	if err != nil {
		writeError(c, h.logger, "ResolveMarket", err)
		return
	}
	h.bonuses.ApplyBonusesAsync(marketID)
	c.JSON(http.StatusOK, result)
}

// ApplyBonuses POST /api/admin/markets/:id/bonuses
func (h *SettlementHandler) ApplyBonuses(c *gin.Context) {
	marketID, ok := marketIDParam(c)
	if !ok {
		return
	}
	result, err := h.bonuses.ApplyBonuses(c.Request.Context(), marketID)
	if err != nil {
		writeError(c, h.logger, "ApplyBonuses", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RetryPayouts POST /api/admin/markets/:id/payouts/retry
func (h *SettlementHandler) RetryPayouts(c *gin.Context) {
	marketID, ok := marketIDParam(c)
	if !ok {
		return
	}
	result, err := h.resolver.RetryPayouts(c.Request.Context(), marketID)
	if err != nil {
		writeError(c, h.logger, "RetryPayouts", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RunAutoResolve 锁被占用时返回空数组
// POST /api/admin/auto-resolve/run
func (h *SettlementHandler) RunAutoResolve(c *gin.Context) {
	results, err := h.autoResolve.RunSweep(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "RunSweep", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
