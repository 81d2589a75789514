package strategy

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillm/volume-bot/internal/domain"
)

var (
	ErrNoRoom                = errors.New("no room for trade")
	ErrZeroQuantity          = errors.New("quantity rounds to zero")
	ErrInsufficientInventory = errors.New("insufficient token balance")
)

// Leg одна сторона встречной пары ордеров
type Leg struct {
	Side     string
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Plan рассчитанная сделка: обе ноги с одной ценой и количеством
type Plan struct {
	Bid      decimal.Decimal
	Ask      decimal.Decimal
	Offset   decimal.Decimal
	Amount   decimal.Decimal
	RawPrice decimal.Decimal // bid+offset или ask-offset до округления
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Legs     [2]Leg
}

// FirstSide сторона первой ноги
func (p *Plan) FirstSide() string {
	return p.Legs[0].Side
}

func (p *Plan) String() string {
	return fmt.Sprintf("%s/%s price=%s qty=%s amount=%s",
		p.Legs[0].Side, p.Legs[1].Side, p.Price, p.Quantity, p.Amount)
}

// Planner считает сделки volume-бота. Не потокобезопасен
type Planner struct {
	rnd *rand.Rand
}

// NewPlanner создает планировщик сделок; nil source означает текущее время как seed
func NewPlanner(src rand.Source) *Planner {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Planner{rnd: rand.New(src)}
}

// Tick минимальный шаг цены при заданной точности
func Tick(priceDecimal int32) decimal.Decimal {
	return decimal.New(1, -priceDecimal)
}

// Plan рассчитывает пару ордеров внутри спреда
func (p *Planner) Plan(bot *domain.BotConfig, book *domain.BookTop, baseAvailable decimal.Decimal) (*Plan, error) {
	pd := bot.PriceDecimal
	tick := Tick(pd)
	bid := book.Bid.Round(pd)
	ask := book.Ask.Round(pd)

	spread := ask.Sub(bid)
	if spread.LessThanOrEqual(tick) {
		return nil, ErrNoRoom
	}

	plan := &Plan{
		Bid:    bid,
		Ask:    ask,
		Offset: spread.Mul(bot.TradeParam),
		Amount: p.amount(bot),
	}

	first := p.firstSide(bot.TradeFlow)
	if first == domain.SideBuy {
		plan.RawPrice = bid.Add(plan.Offset)
	} else {
		plan.RawPrice = ask.Sub(plan.Offset)
	}
	plan.Price = insideSpread(plan.RawPrice.Round(pd), bid, ask, tick)

	plan.Quantity = plan.Amount.Div(plan.Price).Round(bot.QuantityDecimal)
	if !plan.Quantity.IsPositive() {
		return nil, ErrZeroQuantity
	}
	if plan.Quantity.GreaterThan(baseAvailable) {
		return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientInventory, plan.Quantity, baseAvailable)
	}

	plan.Legs = legs(first, plan.Price, plan.Quantity)
	return plan, nil
}

// insideSpread держит цену строго между bid и ask
func insideSpread(price, bid, ask, tick decimal.Decimal) decimal.Decimal {
	if price.LessThanOrEqual(bid) {
		price = bid.Add(tick)
	}
	if price.GreaterThanOrEqual(ask) {
		price = ask.Sub(tick)
	}
	return price
}

func legs(first string, price, qty decimal.Decimal) [2]Leg {
	second := domain.SideSell
	if first == domain.SideSell {
		second = domain.SideBuy
	}
	return [2]Leg{
		{Side: first, Price: price, Quantity: qty},
		{Side: second, Price: price, Quantity: qty},
	}
}

func (p *Planner) firstSide(flow string) string {
	switch flow {
	case domain.TradeFlowSellBuy:
		return domain.SideSell
	case domain.TradeFlowMixed:
		if p.rnd.Float64() < 0.5 {
			return domain.SideBuy
		}
		return domain.SideSell
	default:
		return domain.SideBuy
	}
}

// amount случайный объем сделки в котируемом активе
func (p *Planner) amount(bot *domain.BotConfig) decimal.Decimal {
	lo, hi := bot.TradeAmountMin, bot.TradeAmountMax
	if hi.LessThan(lo) {
		lo, hi = hi, lo
	}
	r := decimal.NewFromFloat(p.rnd.Float64())
	return lo.Add(hi.Sub(lo).Mul(r)).Round(bot.AmountDecimal)
}

// NextDelay случайная пауза до следующего запуска бота
func (p *Planner) NextDelay(bot *domain.BotConfig) time.Duration {
	lo, hi := bot.ExecutionTimingMin, bot.ExecutionTimingMax
	if hi < lo {
		lo, hi = hi, lo
	}
	secs := lo
	if hi > lo {
		secs += p.rnd.Intn(hi - lo + 1)
	}
	return time.Duration(secs) * time.Second
}
