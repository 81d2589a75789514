package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillm/volume-bot/internal/domain"
	"github.com/kirillm/volume-bot/internal/exchange"
	"github.com/kirillm/volume-bot/internal/execution"
	"github.com/kirillm/volume-bot/internal/metrics"
	"github.com/kirillm/volume-bot/internal/strategy"
)

// executeBot одна попытка сделки. Возвращает true, если бот выключен
func (s *Scheduler) executeBot(ctx context.Context, ex exchange.Exchange, bot *domain.BotConfig, balances domain.Balances) bool {
	pair := bot.Pair()

	// 1. Суточный лимит объема
	ticker, err := ex.Get24hVolume(ctx, bot.Creds, bot.Symbol)
	if err != nil {
		s.failed(ctx, bot, err)
		return false
	}
	if v := s.policy.CheckVolumeCap(bot, ticker.QuoteVolume); v != nil {
		s.stopBot(ctx, bot, v)
		return true
	}

	// 2. Достаточно ли котируемого актива
	if v := s.policy.CheckFunds(bot, balances); v != nil {
		s.skipped(ctx, bot, v.Message)
		return false
	}

	// 3-7. Стакан и расчет сделки
	book, err := ex.GetOrderBook(ctx, bot.Creds, bot.Symbol, s.policy.OrderBookDepth)
	if err != nil {
		s.failed(ctx, bot, err)
		return false
	}

	baseAvailable := balances.Available(bot.Base(s.policy.QuoteAsset))
	plan, err := s.planner.Plan(bot, book, baseAvailable)
	switch {
	case errors.Is(err, strategy.ErrNoRoom):
		s.skipped(ctx, bot, "Trade skipped - no room for trade")
		return false
	case errors.Is(err, strategy.ErrInsufficientInventory):
		s.skipped(ctx, bot, fmt.Sprintf("Trade skipped - insufficient %s balance. Current balance is %s", bot.Base(s.policy.QuoteAsset), baseAvailable))
		return false
	case errors.Is(err, strategy.ErrZeroQuantity):
		s.skipped(ctx, bot, "Trade skipped - quantity rounds to zero")
		return false
	case err != nil:
		s.failed(ctx, bot, err)
		return false
	}

	// 8. Пара ордеров, cleanup-отмена, фиксация статуса
	if err := s.placePair(ctx, pair, plan); err != nil {
		s.failed(ctx, bot, err)
		return false
	}
	metrics.BotExecutionsTotal.WithLabelValues(bot.Symbol, "executed").Inc()
	s.clearFailure(bot.ID)
	return false
}

func (s *Scheduler) placePair(ctx context.Context, pair domain.Pair, plan *strategy.Plan) error {
	specs := make([]execution.OrderSpec, 0, len(plan.Legs))
	for _, leg := range plan.Legs {
		specs = append(specs, execution.OrderSpec{
			Side:        leg.Side,
			Type:        domain.OrderTypeLimit,
			Quantity:    leg.Quantity,
			Price:       leg.Price,
			TimeInForce: s.policy.TimeInForce,
			IsBotOrder:  true,
		})
	}

	outcome, err := s.engine.CreateBatch(ctx, pair, specs)
	if err != nil {
		return err
	}

	for _, f := range outcome.Failed {
		s.audit.Warning(ctx, pair, "Order %s %s@%s failed: %s", f.Spec.Side, f.Spec.Quantity, f.Spec.Price, f.Msg)
	}

	ids := outcome.OrderIDs()
	if len(ids) == 0 {
		return nil
	}

	if _, err := s.engine.CancelBatch(ctx, pair, ids); err != nil {
		s.logger.Warn("Cleanup cancel for %s failed: %v", pair, err)
	}

	summary := s.settle(ctx, pair, ids)
	s.audit.Trade(ctx, pair, "Trade executed: %s/%s price=%s quantity=%s amount=%s (%s)",
		plan.Legs[0].Side, plan.Legs[1].Side, plan.Price, plan.Quantity, plan.Amount, summary)
	return nil
}

// settle фиксирует итоговый статус ордеров после cleanup-отмены
func (s *Scheduler) settle(ctx context.Context, pair domain.Pair, ids []string) string {
	if s.cfg.OptimisticCancel {
		if _, err := s.engine.MarkCanceled(ctx, pair, ids); err != nil {
			s.logger.Error("Failed to mark orders canceled for %s: %v", pair, err)
		}
		return strings.Join(ids, ", ") + " " + domain.OrderStatusCanceled
	}

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		order, err := s.engine.UpdateOrderStatus(ctx, pair, id)
		if err != nil {
			s.logger.Warn("Failed to confirm order %s for %s: %v", id, pair, err)
			parts = append(parts, id+" UNKNOWN")
			continue
		}
		parts = append(parts, id+" "+order.Status)
	}
	return strings.Join(parts, ", ")
}

func (s *Scheduler) skipped(ctx context.Context, bot *domain.BotConfig, msg string) {
	s.audit.Warning(ctx, bot.Pair(), "%s", msg)
	metrics.BotExecutionsTotal.WithLabelValues(bot.Symbol, "skipped").Inc()
}

func (s *Scheduler) failed(ctx context.Context, bot *domain.BotConfig, err error) {
	msg := domain.ExchangeMessage(err)
	s.audit.Error(ctx, bot.Pair(), "Bot execution failed: %s", msg)
	metrics.BotExecutionsTotal.WithLabelValues(bot.Symbol, "error").Inc()

	// одна и та же ошибка на каждом тике уходит в Telegram один раз
	s.mu.Lock()
	repeated := s.lastFailure[bot.ID] == msg
	s.lastFailure[bot.ID] = msg
	s.mu.Unlock()
	if !repeated {
		s.alerts.ExecutionFailed(bot.Pair(), msg)
	}
}

func (s *Scheduler) clearFailure(botID int64) {
	s.mu.Lock()
	delete(s.lastFailure, botID)
	s.mu.Unlock()
}
