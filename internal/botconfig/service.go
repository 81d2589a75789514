// Package botconfig меняет ключи, статус и снимок балансов ботов.
package botconfig

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillm/volume-bot/internal/domain"
	"github.com/kirillm/volume-bot/internal/exchange"
	"github.com/kirillm/volume-bot/pkg/utils"
)

// Scheduler часть планировщика, нужная сервису
type Scheduler interface {
	Forget(botID int64)
}

// Service операции оператора над настройками бота
type Service struct {
	bots      domain.BotConfigRepository
	history   domain.ResetHistoryRepository
	registry  *exchange.Registry
	scheduler Scheduler
	quote     string
	logger    *utils.Logger
}

// NewService создает сервис; quote котируемый актив снимка (USDT)
func NewService(
	bots domain.BotConfigRepository,
	history domain.ResetHistoryRepository,
	registry *exchange.Registry,
	scheduler Scheduler,
	quote string,
	logger *utils.Logger,
) *Service {
	if quote == "" {
		quote = domain.QuoteAssetUSDT
	}
	if logger == nil {
		logger = utils.Discard()
	}
	return &Service{
		bots:      bots,
		history:   history,
		registry:  registry,
		scheduler: scheduler,
		quote:     quote,
		logger:    logger.With("component", "botconfig"),
	}
}

// UpdateCredentials сохраняет ключи. Если ключи изменились и полные, сначала
// читаются балансы нового аккаунта, и только потом ключи сохраняются вместе со снимком
func (s *Service) UpdateCredentials(ctx context.Context, id int64, creds domain.Credentials) (*domain.BotConfig, error) {
	creds.APIKey = strings.TrimSpace(creds.APIKey)
	creds.SecretKey = strings.TrimSpace(creds.SecretKey)

	bot, err := s.bots.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("bot %d: %w", id, err)
	}

	if bot.Creds == creds {
		return bot, nil
	}

	if !creds.Complete() {
		if err := s.bots.UpdateCredentials(ctx, id, creds); err != nil {
			return nil, fmt.Errorf("failed to update credentials: %w", err)
		}
		bot.Creds = creds
		return bot, nil
	}

	token, usdt, err := s.fetchSnapshot(ctx, bot, creds)
	if err != nil {
		return nil, err
	}

	if err := s.bots.UpdateCredentials(ctx, id, creds); err != nil {
		return nil, fmt.Errorf("failed to update credentials: %w", err)
	}
	bot.Creds = creds

	if err := s.storeSnapshot(ctx, bot, token, usdt, domain.ResetReasonCredentialsChanged); err != nil {
		// новые ключи со старым снимком торговать не должны
		if offErr := s.bots.UpdateStatus(ctx, id, domain.BotStatusOff); offErr != nil {
			s.logger.Error("Failed to switch bot %d off after snapshot failure: %v", id, offErr)
		} else {
			s.forget(id)
		}
		return nil, err
	}
	return bot, nil
}

// ResetBalances пересчитывает снимок балансов и пишет историю
func (s *Service) ResetBalances(ctx context.Context, id int64) (*domain.BotConfig, error) {
	bot, err := s.bots.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("bot %d: %w", id, err)
	}
	if !bot.Creds.Complete() {
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingCredentials, bot.Pair())
	}

	token, usdt, err := s.fetchSnapshot(ctx, bot, bot.Creds)
	if err != nil {
		return nil, err
	}
	if err := s.storeSnapshot(ctx, bot, token, usdt, domain.ResetReasonManual); err != nil {
		return nil, err
	}
	return bot, nil
}

// fetchSnapshot читает живые балансы аккаунта с заданными ключами
func (s *Service) fetchSnapshot(ctx context.Context, bot *domain.BotConfig, creds domain.Credentials) (token, usdt decimal.Decimal, err error) {
	ex, err := s.registry.Get(bot.Exchange)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	balances, err := ex.GetBalances(ctx, creds)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to fetch balances: %w", err)
	}
	return balances.Available(bot.Base(s.quote)), balances.Available(s.quote), nil
}

func (s *Service) storeSnapshot(ctx context.Context, bot *domain.BotConfig, token, usdt decimal.Decimal, reason string) error {
	if err := s.bots.UpdateSnapshot(ctx, bot.ID, token, usdt); err != nil {
		return fmt.Errorf("failed to update balance snapshot: %w", err)
	}
	bot.TokenBalance = token
	bot.USDTBalance = usdt

	record := &domain.BalanceResetRecord{
		BotID:        bot.ID,
		TokenBalance: token,
		USDTBalance:  usdt,
		Reason:       reason,
		CreatedAt:    time.Now(),
	}
	if err := s.history.Save(ctx, record); err != nil {
		s.logger.Error("Failed to save reset history for bot %d: %v", bot.ID, err)
	}

	s.logger.Info("Bot %d snapshot reset (%s): token=%s usdt=%s", bot.ID, reason, token, usdt)
	return nil
}

func (s *Service) forget(id int64) {
	if s.scheduler != nil {
		s.scheduler.Forget(id)
	}
}

// SetStatus включает или выключает бота и сбрасывает его состояние в планировщике
func (s *Service) SetStatus(ctx context.Context, id int64, status string) error {
	status = strings.ToUpper(status)
	if status != domain.BotStatusOn && status != domain.BotStatusOff {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, status)
	}

	if err := s.bots.UpdateStatus(ctx, id, status); err != nil {
		return fmt.Errorf("bot %d: %w", id, err)
	}
	s.forget(id)

	s.logger.Info("Bot %d status set to %s", id, status)
	return nil
}

// History последние пересъемы снимка
func (s *Service) History(ctx context.Context, id int64, limit int) ([]domain.BalanceResetRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.history.ListByBot(ctx, id, limit)
}
