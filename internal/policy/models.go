package policy

import "github.com/shopspring/decimal"

// Policy профиль безопасности volume-ботов
type Policy struct {
	ProfileName     string  `yaml:"profile_name"`
	QuoteAsset      string  `yaml:"quote_asset"`
	MinQuoteBalance float64 `yaml:"min_quote_balance"` // ниже этого остатка бот не торгует
	OrderBookDepth  int     `yaml:"order_book_depth"`
	TimeInForce     string  `yaml:"time_in_force"`
}

// Violation типы нарушений
const (
	ViolationCurrencyDrift = "currency_drift"
	ViolationTokenDrift    = "token_drift"
	ViolationVolumeCap     = "volume_cap"
	ViolationFunds         = "insufficient_currency"
)

// Violation описывает нарушение политики
type Violation struct {
	Type       string
	Bound      string // Lower, Upper
	LimitValue decimal.Decimal
	Before     decimal.Decimal
	Current    decimal.Decimal
	Stop       bool // бот выключается, а не пропускает тик
	Message    string
}
