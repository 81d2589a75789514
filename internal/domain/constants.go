package domain

// Exchanges
const (
	ExchangeMEXC = "MEXC"
)

// Order sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order types
const (
	OrderTypeLimit  = "LIMIT"
	OrderTypeMarket = "MARKET"
)

// Time in force
const (
	TimeInForceGTC = "GTC"
)

// Order statuses
const (
	OrderStatusNew             = "NEW"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCanceled        = "CANCELED"
	OrderStatusExpired         = "EXPIRED"
)

// Trade flows
const (
	TradeFlowBuySell = "BUY_SELL"
	TradeFlowSellBuy = "SELL_BUY"
	TradeFlowMixed   = "MIXED"
)

// Bot statuses
const (
	BotStatusOn  = "ON"
	BotStatusOff = "OFF"
)

// Log levels
const (
	LogLevelInfo    = "INFO"
	LogLevelWarning = "WARNING"
	LogLevelError   = "ERROR"
)

// Balance reset reasons
const (
	ResetReasonManual             = "manual_reset"
	ResetReasonCredentialsChanged = "credentials_changed"
)

// QuoteAssetUSDT котируемый актив по умолчанию
const QuoteAssetUSDT = "USDT"

// Локальные коды результата по ордеру; коды биржи всегда другие
const (
	// CodeUnconfirmed биржа не подтвердила операцию по ордеру
	CodeUnconfirmed = -1
	// CodeAlreadyTerminal ордер уже в терминальном статусе, биржа не вызывалась
	CodeAlreadyTerminal = -2
)
