package service

import (
	"fmt"
	"strings"
	"time"

	"PoolSettle/internal/apperr"
	"PoolSettle/internal/model"

	"github.com/go-playground/validator/v10"
)

// PlaceBetRequest 下注请求；Amount 为该市场上的下注总额（加注时为加注后的总额）
type PlaceBetRequest struct {
	UserID       uint64 `json:"user_id" validate:"required"`
	MarketID     uint64 `json:"market_id" validate:"required"`
	Outcome      *bool  `json:"outcome" validate:"required"`
	Amount       int64  `json:"amount" validate:"gt=0"`
	ReferralCode string `json:"referral_code" validate:"omitempty,max=32,printascii"`
}

// BetContext 校验所需的当前状态
type BetContext struct {
	Market   *model.Market
	Balance  int64
	Existing *model.Bet
	Now      time.Time
}

type betCheck func(req *PlaceBetRequest, bc *BetContext) error

// BetValidator 依次执行下注校验，遇到第一个失败即返回
type BetValidator struct {
	validate *validator.Validate
	checks   []betCheck
}

// NewBetValidator 创建下注校验器
func NewBetValidator() *BetValidator {
	return &BetValidator{
		validate: validator.New(),
		checks: []betCheck{
			checkMarketOpen,
			checkMaxStake,
			checkExistingBet,
			checkBalance,
		},
	}
}

// ValidateShape 参数格式校验（方向必填、金额为正）
func (v *BetValidator) ValidateShape(req *PlaceBetRequest) error {
	if req == nil {
		return apperr.Validation(apperr.CodeInvalidRequest, "request is required")
	}
	if err := v.validate.Struct(req); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
			}
			return apperr.Validation(apperr.CodeInvalidRequest, "invalid fields: "+strings.Join(fields, ", "))
		}
		return apperr.Validation(apperr.CodeInvalidRequest, err.Error())
	}
	return nil
}

// Validate 完整校验链：格式 -> 市场状态 -> 单笔上限 -> 已有下注冲突 -> 余额。
// 已有下注冲突先于余额，换边等错误码不会被余额不足掩盖
func (v *BetValidator) Validate(req *PlaceBetRequest, bc *BetContext) error {
	if err := v.ValidateShape(req); err != nil {
		return err
	}
	for _, check := range v.checks {
		if err := check(req, bc); err != nil {
			return err
		}
	}
	return nil
}

func checkMarketOpen(_ *PlaceBetRequest, bc *BetContext) error {
	if bc.Market.Resolved {
		return apperr.Validation(apperr.CodeMarketResolved, "market already resolved")
	}
	if !bc.Now.Before(bc.Market.CloseTime) {
		return apperr.Validation(apperr.CodeMarketClosed, "market closed for betting")
	}
	return nil
}

func checkMaxStake(req *PlaceBetRequest, bc *BetContext) error {
	if bc.Market.MaxBet > 0 && req.Amount > bc.Market.MaxBet {
		return apperr.Validation(apperr.CodeAmountExceedsMax,
			fmt.Sprintf("amount %d exceeds market maximum %d", req.Amount, bc.Market.MaxBet))
	}
	return nil
}

// checkBalance 加注只需覆盖差额
func checkBalance(req *PlaceBetRequest, bc *BetContext) error {
	required := req.Amount
	if e := bc.Existing; e != nil && e.Outcome == *req.Outcome && req.Amount > e.Amount {
		required = req.Amount - e.Amount
	}
	if bc.Balance < required {
		return apperr.Validation(apperr.CodeInsufficientPoints,
			fmt.Sprintf("insufficient balance: have %d, need %d", bc.Balance, required))
	}
	return nil
}

func checkExistingBet(req *PlaceBetRequest, bc *BetContext) error {
	e := bc.Existing
	if e == nil {
		return nil
	}
	switch {
	case e.Outcome != *req.Outcome:
		return apperr.Validation(apperr.CodeSideSwitch, "cannot switch side on an existing bet")
	case req.Amount == e.Amount:
		return apperr.Validation(apperr.CodeAmountUnchanged, "amount equals existing bet")
	case req.Amount < e.Amount:
		return apperr.Validation(apperr.CodeAmountDecrease,
			fmt.Sprintf("amount %d is below existing bet %d", req.Amount, e.Amount))
	}
	return nil
}
