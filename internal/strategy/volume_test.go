package strategy

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillm/volume-bot/internal/domain"
)

// fixedSource всегда отдает одно значение
type fixedSource int64

func (s fixedSource) Int63() int64 { return int64(s) }
func (s fixedSource) Seed(int64)   {}

const (
	lowDraw  = fixedSource(0)
	highDraw = fixedSource(1 << 62)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func bot(flow, param string) *domain.BotConfig {
	return &domain.BotConfig{
		Symbol:          "LFUSDT",
		PriceDecimal:    6,
		QuantityDecimal: 0,
		AmountDecimal:   2,
		TradeAmountMin:  d("1.73"),
		TradeAmountMax:  d("1.73"),
		TradeFlow:       flow,
		TradeParam:      d(param),
	}
}

func book(bid, ask string) *domain.BookTop {
	return &domain.BookTop{Bid: d(bid), Ask: d(ask)}
}

func TestPlan_SpreadExample(t *testing.T) {
	plan, err := NewPlanner(lowDraw).Plan(bot(domain.TradeFlowBuySell, "0.5"), book("0.000170", "0.000175"), d("1000000"))
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"offset", plan.Offset, "0.0000025"},
		{"raw price", plan.RawPrice, "0.0001725"},
		{"price", plan.Price, "0.000173"},
		{"quantity", plan.Quantity, "10000"},
	}
	for _, c := range checks {
		if !c.got.Equal(d(c.want)) {
			t.Errorf("Plan() %s = %s, want %s", c.name, c.got, c.want)
		}
	}

	if plan.Legs[0].Side != domain.SideBuy || plan.Legs[1].Side != domain.SideSell {
		t.Errorf("Plan() legs = %s/%s, want BUY/SELL", plan.Legs[0].Side, plan.Legs[1].Side)
	}
}

func TestPlan_PriceStaysInsideSpread(t *testing.T) {
	tests := []struct {
		name      string
		flow      string
		param     string
		bid, ask  string
		wantPrice string
		wantFirst string
	}{
		{"buy nudged off bid", domain.TradeFlowBuySell, "0.1", "0.000170", "0.000172", "0.000171", domain.SideBuy},
		{"sell nudged off ask", domain.TradeFlowSellBuy, "0.1", "0.000170", "0.000172", "0.000171", domain.SideSell},
		{"buy zero param", domain.TradeFlowBuySell, "0", "0.000170", "0.000180", "0.000171", domain.SideBuy},
		{"buy full param clamped", domain.TradeFlowBuySell, "1", "0.000170", "0.000180", "0.000179", domain.SideBuy},
		{"sell full param clamped", domain.TradeFlowSellBuy, "1", "0.000170", "0.000180", "0.000171", domain.SideSell},
		{"mixed low draw buys", domain.TradeFlowMixed, "0.5", "0.000170", "0.000180", "0.000175", domain.SideBuy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := NewPlanner(lowDraw).Plan(bot(tt.flow, tt.param), book(tt.bid, tt.ask), d("1000000"))
			if err != nil {
				t.Fatalf("Plan() error = %v", err)
			}
			if !plan.Price.Equal(d(tt.wantPrice)) {
				t.Errorf("Plan() price = %s, want %s", plan.Price, tt.wantPrice)
			}
			if plan.Price.Equal(plan.Bid) || plan.Price.Equal(plan.Ask) {
				t.Errorf("Plan() price %s touches book %s/%s", plan.Price, plan.Bid, plan.Ask)
			}
			if plan.FirstSide() != tt.wantFirst {
				t.Errorf("Plan() first side = %s, want %s", plan.FirstSide(), tt.wantFirst)
			}
			if !plan.Legs[0].Price.Equal(plan.Legs[1].Price) || !plan.Legs[0].Quantity.Equal(plan.Legs[1].Quantity) {
				t.Errorf("Plan() legs differ: %+v", plan.Legs)
			}
		})
	}
}

func TestPlan_MixedHighDrawSells(t *testing.T) {
	plan, err := NewPlanner(highDraw).Plan(bot(domain.TradeFlowMixed, "0.5"), book("0.000170", "0.000180"), d("1000000"))
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.FirstSide() != domain.SideSell {
		t.Errorf("Plan() first side = %s, want SELL", plan.FirstSide())
	}
}

func TestPlan_Skips(t *testing.T) {
	tests := []struct {
		name    string
		bid     string
		ask     string
		base    string
		amount  string
		wantErr error
	}{
		{"one tick spread", "0.000170", "0.000171", "1000000", "1.73", ErrNoRoom},
		{"crossed book", "0.000171", "0.000170", "1000000", "1.73", ErrNoRoom},
		{"not enough tokens", "0.000170", "0.000175", "9999", "1.73", ErrInsufficientInventory},
		{"zero quantity", "0.000170", "0.000175", "1000000", "0", ErrZeroQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bot(domain.TradeFlowBuySell, "0.5")
			b.TradeAmountMin = d(tt.amount)
			b.TradeAmountMax = d(tt.amount)

			_, err := NewPlanner(lowDraw).Plan(b, book(tt.bid, tt.ask), d(tt.base))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Plan() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPlan_AmountWithinRange(t *testing.T) {
	p := NewPlanner(rand.NewSource(42))
	b := bot(domain.TradeFlowBuySell, "0.5")
	b.TradeAmountMin = d("1")
	b.TradeAmountMax = d("2")

	for i := 0; i < 50; i++ {
		plan, err := p.Plan(b, book("0.000170", "0.000175"), d("1000000"))
		if err != nil {
			t.Fatalf("Plan() error = %v", err)
		}
		if plan.Amount.LessThan(b.TradeAmountMin) || plan.Amount.GreaterThan(b.TradeAmountMax) {
			t.Fatalf("Plan() amount = %s, want within [1, 2]", plan.Amount)
		}
		if plan.Amount.Exponent() < -2 {
			t.Fatalf("Plan() amount = %s, want 2 decimals", plan.Amount)
		}
	}
}

func TestNextDelay(t *testing.T) {
	tests := []struct {
		name     string
		min, max int
	}{
		{"fixed", 30, 30},
		{"range", 30, 60},
		{"swapped", 60, 30},
	}

	p := NewPlanner(rand.NewSource(1))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &domain.BotConfig{ExecutionTimingMin: tt.min, ExecutionTimingMax: tt.max}
			lo, hi := tt.min, tt.max
			if hi < lo {
				lo, hi = hi, lo
			}
			for i := 0; i < 20; i++ {
				got := p.NextDelay(b)
				if got < time.Duration(lo)*time.Second || got > time.Duration(hi)*time.Second {
					t.Fatalf("NextDelay() = %s, want within [%ds, %ds]", got, lo, hi)
				}
			}
		})
	}
}
