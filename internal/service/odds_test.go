package service

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCalculateOddsNeutralAtZeroPool(t *testing.T) {
	o := CalculateOdds(0, 0)
	if o.YesOdds != 1 || o.NoOdds != 1 || o.YesPercent != 50 || o.NoPercent != 50 || o.TotalPool != 0 {
		t.Fatalf("odds = %+v", o)
	}
}

func TestCalculateOdds(t *testing.T) {
	o := CalculateOdds(300, 700)
	if o.TotalPool != 1000 {
		t.Errorf("total = %d", o.TotalPool)
	}
	if o.YesOdds != 1000.0/300.0 || o.NoOdds != 1000.0/700.0 {
		t.Errorf("odds = %+v", o)
	}
	if o.YesPercent != 30 || o.NoPercent != 70 {
		t.Errorf("percent = %v/%v", o.YesPercent, o.NoPercent)
	}

	oneSided := CalculateOdds(500, 0)
	if oneSided.YesOdds != 1 || oneSided.NoOdds != 0 || oneSided.YesPercent != 100 {
		t.Errorf("one sided = %+v", oneSided)
	}
}

func TestPotentialPayout(t *testing.T) {
	tests := []struct {
		name    string
		yes, no int64
		amount  int64
		outcome bool
		want    int64
	}{
		{"yes into 300/700", 300, 700, 100, true, 275},
		{"no into 300/700", 300, 700, 100, false, 137},
		{"empty pool", 0, 0, 100, true, 100},
		{"alone on side", 0, 500, 100, true, 600},
		{"zero amount on empty side", 0, 500, 0, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PotentialPayout(tt.yes, tt.no, tt.amount, tt.outcome); got != tt.want {
				t.Errorf("PotentialPayout = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestQuotePayoutMultiplier(t *testing.T) {
	q := QuotePayout(300, 700, 100, true)
	if q.PotentialPayout != 275 || q.Multiplier != 2.75 {
		t.Fatalf("quote = %+v", q)
	}
	if q.OddsAfter.TotalPool != 1100 {
		t.Errorf("odds after = %+v", q.OddsAfter)
	}
}

func TestFloorHelpers(t *testing.T) {
	if got := floorMulDiv(200, 1000, 500); got != 400 {
		t.Errorf("floorMulDiv = %d", got)
	}
	if got := floorMulDiv(1, 10, 3); got != 3 {
		t.Errorf("floorMulDiv(1,10,3) = %d", got)
	}
	rate := decimal.NewFromFloat(0.10)
	if got := floorMul(150, rate); got != 15 {
		t.Errorf("commission = %d", got)
	}
	if got := floorMul(9, rate); got != 0 {
		t.Errorf("commission on 9 = %d", got)
	}
	if got := floorMul(1000, decimal.NewFromFloat(1.5)); got != 1500 {
		t.Errorf("multiplier = %d", got)
	}
}
