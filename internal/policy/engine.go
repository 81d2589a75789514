package policy

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/kirillm/volume-bot/internal/domain"
)

const defaultProfile = "default"

// defaultMinQuoteBalance минимальный остаток, если профиль его не задает
const defaultMinQuoteBalance = 1

// Default встроенный профиль, если файл политики не задан
func Default() *Policy {
	p := &Policy{ProfileName: defaultProfile, MinQuoteBalance: defaultMinQuoteBalance}
	p.applyDefaults()
	return p
}

// Load загружает профиль из YAML файла
func Load(path, profileName string) (*Policy, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}

	var config struct {
		Profiles map[string]yaml.Node `yaml:"profiles"`
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	if profileName == "" {
		profileName = defaultProfile
	}

	node, ok := config.Profiles[profileName]
	if !ok {
		return nil, fmt.Errorf("policy profile %s not found", profileName)
	}

	// ключи, которых нет в профиле, остаются со значениями по умолчанию
	policy := Policy{MinQuoteBalance: defaultMinQuoteBalance}
	if err := node.Decode(&policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy profile %s: %w", profileName, err)
	}

	policy.ProfileName = profileName
	if policy.MinQuoteBalance < 0 {
		return nil, fmt.Errorf("%w: min_quote_balance must be >= 0", domain.ErrInvalidInput)
	}
	policy.applyDefaults()
	return &policy, nil
}

func (p *Policy) applyDefaults() {
	if p.QuoteAsset == "" {
		p.QuoteAsset = domain.QuoteAssetUSDT
	}
	if p.OrderBookDepth <= 0 {
		p.OrderBookDepth = 1
	}
	if p.TimeInForce == "" {
		p.TimeInForce = domain.TimeInForceGTC
	}
}

// MinQuote минимальный рабочий остаток котируемого актива
func (p *Policy) MinQuote() decimal.Decimal {
	return decimal.NewFromFloat(p.MinQuoteBalance)
}

// CheckDrift сравнивает живые балансы со снимком; границы включительные.
// Сначала проверяется котируемый актив, затем токен
func (p *Policy) CheckDrift(bot *domain.BotConfig, balances domain.Balances) *Violation {
	quote := balances.Available(p.QuoteAsset)
	if v := checkBand(ViolationCurrencyDrift, "Currency", bot.USDTBalance, quote, bot.CurrencyThrottleMinus, bot.CurrencyThrottlePlus); v != nil {
		return v
	}

	token := balances.Available(bot.Base(p.QuoteAsset))
	return checkBand(ViolationTokenDrift, "Token", bot.TokenBalance, token, bot.TokenThrottleMinus, bot.TokenThrottlePlus)
}

func checkBand(kind, label string, snapshot, live, minus, plus decimal.Decimal) *Violation {
	lower := snapshot.Sub(minus)
	upper := snapshot.Add(plus)

	var bound string
	var limit decimal.Decimal
	switch {
	case live.LessThan(lower):
		bound, limit = "Lower", lower
	case live.GreaterThan(upper):
		bound, limit = "Upper", upper
	default:
		return nil
	}

	return &Violation{
		Type:       kind,
		Bound:      bound,
		LimitValue: limit,
		Before:     snapshot,
		Current:    live,
		Stop:       true,
		Message:    fmt.Sprintf("%s %s Throttle Bot stopped. Before: %s, Current: %s", label, bound, snapshot, live),
	}
}

// CheckVolumeCap останавливает бота, когда суточный объем достиг лимита
func (p *Policy) CheckVolumeCap(bot *domain.BotConfig, quoteVolume decimal.Decimal) *Violation {
	if quoteVolume.LessThan(bot.VolumeLimit24H) {
		return nil
	}
	return &Violation{
		Type:       ViolationVolumeCap,
		LimitValue: bot.VolumeLimit24H,
		Current:    quoteVolume,
		Stop:       true,
		Message:    fmt.Sprintf("Bot stopped: 24h volume limit reached. Volume: %s, Limit: %s", quoteVolume, bot.VolumeLimit24H),
	}
}

// CheckFunds проверяет, что котируемого актива хватает на минимальную сделку
func (p *Policy) CheckFunds(bot *domain.BotConfig, balances domain.Balances) *Violation {
	quote := balances.Available(p.QuoteAsset)
	if quote.GreaterThan(p.MinQuote()) && quote.GreaterThanOrEqual(bot.TradeAmountMin) {
		return nil
	}
	return &Violation{
		Type:       ViolationFunds,
		LimitValue: decimal.Max(p.MinQuote(), bot.TradeAmountMin),
		Current:    quote,
		Message:    fmt.Sprintf("Bot has no sufficient currency balance. Current balance is %s", quote),
	}
}
