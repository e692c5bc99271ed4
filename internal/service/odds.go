package service

import (
	"github.com/shopspring/decimal"
)

// ParimutuelOdds 资金池赔率。某一方资金池为空时该方赔率为 0（未定义）
type ParimutuelOdds struct {
	YesOdds    float64 `json:"yes_odds"`
	NoOdds     float64 `json:"no_odds"`
	YesPercent float64 `json:"yes_percent"`
	NoPercent  float64 `json:"no_percent"`
	TotalPool  int64   `json:"total_pool"`
}

// PayoutQuote 下注前展示的预计派彩（已计入本次下注对资金池的影响）
type PayoutQuote struct {
	Outcome         bool           `json:"outcome"`
	Amount          int64          `json:"amount"`
	PotentialPayout int64          `json:"potential_payout"`
	Multiplier      float64        `json:"multiplier"`
	OddsAfter       ParimutuelOdds `json:"odds_after"`
}

// CalculateOdds 赔率 = 总池 / 本方池；总池为 0 时返回 50/50、赔率 1
func CalculateOdds(yesPool, noPool int64) ParimutuelOdds {
	total := yesPool + noPool
	if total == 0 {
		return ParimutuelOdds{YesOdds: 1, NoOdds: 1, YesPercent: 50, NoPercent: 50}
	}
	o := ParimutuelOdds{
		TotalPool:  total,
		YesPercent: float64(yesPool) * 100 / float64(total),
		NoPercent:  float64(noPool) * 100 / float64(total),
	}
	if yesPool > 0 {
		o.YesOdds = float64(total) / float64(yesPool)
	}
	if noPool > 0 {
		o.NoOdds = float64(total) / float64(noPool)
	}
	return o
}

// PotentialPayout 模拟把 amount 加入 outcome 一方后的派彩：floor(amount * 新总池 / 新本方池)
func PotentialPayout(yesPool, noPool, amount int64, outcome bool) int64 {
	newTotal := yesPool + noPool + amount
	newSide := noPool + amount
	if outcome {
		newSide = yesPool + amount
	}
	if newSide == 0 {
		return amount
	}
	return floorMulDiv(amount, newTotal, newSide)
}

// QuotePayout 计算预计派彩与倍数
func QuotePayout(yesPool, noPool, amount int64, outcome bool) PayoutQuote {
	payout := PotentialPayout(yesPool, noPool, amount, outcome)
	q := PayoutQuote{Outcome: outcome, Amount: amount, PotentialPayout: payout}
	if amount > 0 {
		q.Multiplier, _ = decimal.NewFromInt(payout).Div(decimal.NewFromInt(amount)).Round(4).Float64()
	}
	if outcome {
		q.OddsAfter = CalculateOdds(yesPool+amount, noPool)
	} else {
		q.OddsAfter = CalculateOdds(yesPool, noPool+amount)
	}
	return q
}

// floorMulDiv 计算 floor(a*b/c)，a、b、c 均为非负且 c > 0
func floorMulDiv(a, b, c int64) int64 {
	q, _ := decimal.NewFromInt(a).Mul(decimal.NewFromInt(b)).QuoRem(decimal.NewFromInt(c), 0)
	return q.IntPart()
}

// floorMul 计算 floor(a*rate)
func floorMul(a int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(a).Mul(rate).Floor().IntPart()
}
