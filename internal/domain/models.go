package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Pair торговый инструмент на конкретной бирже
type Pair struct {
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
}

func (p Pair) String() string {
	return p.Exchange + "/" + p.Symbol
}

// Credentials ключи API биржи
type Credentials struct {
	APIKey    string `json:"apiKey"`
	SecretKey string `json:"-"`
}

// Complete сообщает, пригодны ли ключи для торговли
func (c Credentials) Complete() bool {
	return c.APIKey != "" && c.SecretKey != ""
}

// BotConfig настройки volume-бота для одной пары
type BotConfig struct {
	ID        int64  `db:"id" json:"id"`
	Exchange  string `db:"exchange" json:"exchange"`
	Symbol    string `db:"symbol" json:"symbol"`
	BaseAsset string `db:"base_asset" json:"baseAsset"`

	PriceDecimal    int32 `db:"price_decimal" json:"priceDecimal"`
	QuantityDecimal int32 `db:"quantity_decimal" json:"quantityDecimal"`
	AmountDecimal   int32 `db:"amount_decimal" json:"amountDecimal"`

	CurrencyThrottleMinus decimal.Decimal `db:"currency_throttle_minus" json:"currencyThrottleMinus"`
	CurrencyThrottlePlus  decimal.Decimal `db:"currency_throttle_plus" json:"currencyThrottlePlus"`
	TokenThrottleMinus    decimal.Decimal `db:"token_throttle_minus" json:"tokenThrottleMinus"`
	TokenThrottlePlus     decimal.Decimal `db:"token_throttle_plus" json:"tokenThrottlePlus"`

	ExecutionTimingMin int `db:"execution_timing_min" json:"executionTimingMin"` // секунды
	ExecutionTimingMax int `db:"execution_timing_max" json:"executionTimingMax"`

	TradeAmountMin decimal.Decimal `db:"trade_amount_min" json:"tradeAmountMin"`
	TradeAmountMax decimal.Decimal `db:"trade_amount_max" json:"tradeAmountMax"`
	TradeFlow      string          `db:"trade_flow" json:"tradeFlow"`
	TradeParam     decimal.Decimal `db:"trade_param" json:"tradeParam"` // доля спреда, [0,1]
	VolumeLimit24H decimal.Decimal `db:"volume_limit_24h" json:"volumeLimit24H"`

	Creds  Credentials `json:"creds"`
	Status string      `db:"status" json:"status"`

	// Снимок балансов, от которого считается дрейф
	TokenBalance decimal.Decimal `db:"token_balance" json:"tokenBalance"`
	USDTBalance  decimal.Decimal `db:"usdt_balance" json:"usdtBalance"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Pair возвращает торговую пару бота
func (b *BotConfig) Pair() Pair {
	return Pair{Exchange: b.Exchange, Symbol: b.Symbol}
}

// Tradable бот включен и у него полные ключи
func (b *BotConfig) Tradable() bool {
	return b.Status == BotStatusOn && b.Creds.Complete()
}

// Base возвращает базовый актив пары (LF для LFUSDT)
func (b *BotConfig) Base(quote string) string {
	if b.BaseAsset != "" {
		return b.BaseAsset
	}
	return strings.TrimSuffix(b.Symbol, quote)
}

// Order ордер, принятый биржей
type Order struct {
	ID            int64           `db:"id" json:"id"`
	OrderID       string          `db:"order_id" json:"orderId"`
	ClientOrderID string          `db:"client_order_id" json:"clientOrderId,omitempty"`
	Exchange      string          `db:"exchange" json:"exchange"`
	Symbol        string          `db:"symbol" json:"symbol"`
	Side          string          `db:"side" json:"side"`
	Type          string          `db:"type" json:"type"`
	Quantity      decimal.Decimal `db:"quantity" json:"quantity"`
	Price         decimal.Decimal `db:"price" json:"price"` // ноль для MARKET
	TimeInForce   string          `db:"time_in_force" json:"timeInForce,omitempty"`
	Status        string          `db:"status" json:"status"`
	IsBotOrder    bool            `db:"is_bot_order" json:"isBotOrder"`
	NoCancel      bool            `db:"no_cancel" json:"noCancel"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

// Pair возвращает торговую пару ордера
func (o *Order) Pair() Pair {
	return Pair{Exchange: o.Exchange, Symbol: o.Symbol}
}

// AuditLogEntry запись журнала решений бота
type AuditLogEntry struct {
	ID        int64      `db:"id" json:"id"`
	Exchange  string     `db:"exchange" json:"exchange"`
	Symbol    string     `db:"symbol" json:"symbol"`
	Level     string     `db:"level" json:"level"`
	Message   string     `db:"message" json:"message"`
	TradeDate *time.Time `db:"trade_date" json:"tradeDate,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}

// BalanceResetRecord история пересъема снимка балансов
type BalanceResetRecord struct {
	ID           int64           `db:"id" json:"id"`
	BotID        int64           `db:"bot_id" json:"botId"`
	TokenBalance decimal.Decimal `db:"token_balance" json:"tokenBalance"`
	USDTBalance  decimal.Decimal `db:"usdt_balance" json:"usdtBalance"`
	Reason       string          `db:"reason" json:"reason"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}

// Balance баланс одного актива на бирже
type Balance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

// Balances балансы аккаунта по активам
type Balances map[string]Balance

// Available свободный остаток актива, ноль если актива нет
func (b Balances) Available(asset string) decimal.Decimal {
	if bal, ok := b[asset]; ok {
		return bal.Free
	}
	return decimal.Zero
}

// BookTop лучшие цены стакана
type BookTop struct {
	Bid    decimal.Decimal `json:"bid"`
	BidQty decimal.Decimal `json:"bidQty"`
	Ask    decimal.Decimal `json:"ask"`
	AskQty decimal.Decimal `json:"askQty"`
}

// Ticker24h суточная статистика по паре
type Ticker24h struct {
	Symbol      string          `json:"symbol"`
	Volume      decimal.Decimal `json:"volume"`
	QuoteVolume decimal.Decimal `json:"quoteVolume"`
}

// OrderRequest заявка на биржу
type OrderRequest struct {
	Symbol        string
	Side          string
	Type          string
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	TimeInForce   string
	ClientOrderID string
}

// OrderAck подтверждение биржи о приеме ордера
type OrderAck struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          string
	Type          string
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	TransactTime  int64
}

// BatchResult результат одной заявки из пакета
type BatchResult struct {
	OrderID       string
	ClientOrderID string
	Code          int
	Msg           string
}

// Failed заявка отклонена биржей
func (r BatchResult) Failed() bool {
	return r.Code != 0 || r.OrderID == ""
}

// CancelResult результат отмены одного ордера
type CancelResult struct {
	OrderID       string
	ClientOrderID string
	Status        string
	Code          int
	Msg           string
}

// Failed отмена не подтверждена биржей
func (r CancelResult) Failed() bool {
	return r.Code != 0
}

// ExchangeOrder ордер в представлении биржи
type ExchangeOrder struct {
	OrderID       string          `json:"orderId"`
	ClientOrderID string          `json:"clientOrderId,omitempty"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	Price         decimal.Decimal `json:"price"`
	OrigQty       decimal.Decimal `json:"origQty"`
	ExecutedQty   decimal.Decimal `json:"executedQty"`
	Status        string          `json:"status"`
	Time          int64           `json:"time"`
}
