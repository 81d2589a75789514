package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kirillm/volume-bot/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testBot() *domain.BotConfig {
	return &domain.BotConfig{
		Symbol:                "LFUSDT",
		BaseAsset:             "LF",
		CurrencyThrottleMinus: d("5"),
		CurrencyThrottlePlus:  d("10"),
		TokenThrottleMinus:    d("1000"),
		TokenThrottlePlus:     d("1000"),
		TradeAmountMin:        d("1"),
		VolumeLimit24H:        d("50000"),
		USDTBalance:           d("100"),
		TokenBalance:          d("20000"),
	}
}

func balances(usdt, token string) domain.Balances {
	return domain.Balances{
		"USDT": {Asset: "USDT", Free: d(usdt)},
		"LF":   {Asset: "LF", Free: d(token)},
	}
}

func TestCheckDrift(t *testing.T) {
	p := Default()

	tests := []struct {
		name      string
		usdt      string
		token     string
		wantType  string
		wantBound string
	}{
		{"below lower", "89", "20000", ViolationCurrencyDrift, "Lower"},
		{"at lower bound", "95", "20000", "", ""},
		{"inside", "105", "20000", "", ""},
		{"at upper bound", "110", "20000", "", ""},
		{"above upper", "110.01", "20000", ViolationCurrencyDrift, "Upper"},
		{"token below", "100", "18999", ViolationTokenDrift, "Lower"},
		{"token above", "100", "21000.5", ViolationTokenDrift, "Upper"},
		{"currency checked first", "80", "1", ViolationCurrencyDrift, "Lower"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := p.CheckDrift(testBot(), balances(tt.usdt, tt.token))
			if tt.wantType == "" {
				if v != nil {
					t.Errorf("CheckDrift() = %+v, want nil", v)
				}
				return
			}
			if v == nil {
				t.Fatalf("CheckDrift() = nil, want %s", tt.wantType)
			}
			if v.Type != tt.wantType || v.Bound != tt.wantBound || !v.Stop {
				t.Errorf("CheckDrift() = %s/%s stop=%v, want %s/%s", v.Type, v.Bound, v.Stop, tt.wantType, tt.wantBound)
			}
		})
	}
}

func TestCheckDriftMessage(t *testing.T) {
	v := Default().CheckDrift(testBot(), balances("89", "20000"))
	want := "Currency Lower Throttle Bot stopped. Before: 100, Current: 89"
	if v == nil || v.Message != want {
		t.Errorf("CheckDrift().Message = %v, want %q", v, want)
	}
}

func TestCheckVolumeCap(t *testing.T) {
	tests := []struct {
		name   string
		limit  string
		volume string
		want   bool
	}{
		{"below", "50000", "49999.99", false},
		{"equal", "50000", "50000", true},
		{"above", "50000", "60000", true},
		{"zero limit", "0", "0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := testBot()
			bot.VolumeLimit24H = d(tt.limit)
			v := Default().CheckVolumeCap(bot, d(tt.volume))
			if (v != nil) != tt.want {
				t.Errorf("CheckVolumeCap() = %v, want violation %v", v, tt.want)
			}
		})
	}
}

func TestCheckFunds(t *testing.T) {
	tests := []struct {
		name string
		usdt string
		min  string
		want bool
	}{
		{"enough", "100", "1", false},
		{"equal policy minimum", "1", "0.5", true},
		{"below trade minimum", "4", "5", true},
		{"empty", "0", "1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := testBot()
			bot.TradeAmountMin = d(tt.min)
			v := Default().CheckFunds(bot, balances(tt.usdt, "0"))
			if (v != nil) != tt.want {
				t.Errorf("CheckFunds() = %v, want violation %v", v, tt.want)
			}
			if v != nil && v.Stop {
				t.Errorf("CheckFunds() stop = true, want skip only")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	data := `profiles:
  default:
    min_quote_balance: 2.5
  strict:
    quote_asset: USDC
    min_quote_balance: 10
    order_book_depth: 5
  zero:
    min_quote_balance: 0
  unset:
    quote_asset: USDT
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		profile   string
		wantQuote string
		wantMin   float64
		wantDepth int
		wantErr   bool
	}{
		{"default profile", "", "USDT", 2.5, 1, false},
		{"named profile", "strict", "USDC", 10, 5, false},
		{"explicit zero minimum", "zero", "USDT", 0, 1, false},
		{"minimum not set", "unset", "USDT", 1, 1, false},
		{"missing profile", "nope", "", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Load(path, tt.profile)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if p.QuoteAsset != tt.wantQuote || p.MinQuoteBalance != tt.wantMin || p.OrderBookDepth != tt.wantDepth {
				t.Errorf("Load() = %+v", p)
			}
			if p.TimeInForce != domain.TimeInForceGTC {
				t.Errorf("Load() TimeInForce = %s, want GTC", p.TimeInForce)
			}
		})
	}
}

func TestLoadWithoutFile(t *testing.T) {
	p, err := Load("", "anything")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.MinQuoteBalance != 1 || p.QuoteAsset != "USDT" {
		t.Errorf("Load() = %+v, want defaults", p)
	}
}
