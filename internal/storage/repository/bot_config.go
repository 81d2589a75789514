package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillm/volume-bot/internal/domain"
)

const botConfigColumns = `id, exchange, symbol, base_asset, price_decimal, quantity_decimal, amount_decimal,
	currency_throttle_minus, currency_throttle_plus, token_throttle_minus, token_throttle_plus,
	execution_timing_min, execution_timing_max, trade_amount_min, trade_amount_max,
	trade_flow, trade_param, volume_limit_24h, COALESCE(api_key, ''), COALESCE(secret_key, ''),
	status, token_balance, usdt_balance, created_at, updated_at`

// BotConfigRepository реализует работу с настройками volume-ботов
type BotConfigRepository struct {
	db *sql.DB
}

// NewBotConfigRepository создает новый репозиторий для настроек ботов
func NewBotConfigRepository(db *sql.DB) *BotConfigRepository {
	return &BotConfigRepository{db: db}
}

// Get получает настройки по id
func (r *BotConfigRepository) Get(ctx context.Context, id int64) (*domain.BotConfig, error) {
	query := `SELECT ` + botConfigColumns + ` FROM volume_bot_settings WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByPair получает настройки по бирже и символу
func (r *BotConfigRepository) GetByPair(ctx context.Context, pair domain.Pair) (*domain.BotConfig, error) {
	query := `SELECT ` + botConfigColumns + ` FROM volume_bot_settings WHERE exchange = $1 AND symbol = $2`
	return r.getOne(ctx, query, pair.Exchange, pair.Symbol)
}

// GetActive получает все включенные боты
func (r *BotConfigRepository) GetActive(ctx context.Context) ([]domain.BotConfig, error) {
	query := `SELECT ` + botConfigColumns + ` FROM volume_bot_settings WHERE status = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, domain.BotStatusOn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bots []domain.BotConfig
	for rows.Next() {
		bot, err := scanBotConfig(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, *bot)
	}

	return bots, rows.Err()
}

// UpdateStatus включает или выключает бота
func (r *BotConfigRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE volume_bot_settings SET status = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(ctx, query, status, time.Now(), id)
}

// UpdateSnapshot сохраняет снимок балансов для контроля дрейфа
func (r *BotConfigRepository) UpdateSnapshot(ctx context.Context, id int64, tokenBalance, usdtBalance decimal.Decimal) error {
	query := `UPDATE volume_bot_settings SET token_balance = $1, usdt_balance = $2, updated_at = $3 WHERE id = $4`
	return r.execOne(ctx, query, tokenBalance, usdtBalance, time.Now(), id)
}

// UpdateCredentials сохраняет ключи API
func (r *BotConfigRepository) UpdateCredentials(ctx context.Context, id int64, creds domain.Credentials) error {
	query := `UPDATE volume_bot_settings SET api_key = $1, secret_key = $2, updated_at = $3 WHERE id = $4`
	return r.execOne(ctx, query, nullString(creds.APIKey), nullString(creds.SecretKey), time.Now(), id)
}

func (r *BotConfigRepository) getOne(ctx context.Context, query string, args ...interface{}) (*domain.BotConfig, error) {
	bot, err := scanBotConfig(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return bot, err
}

func (r *BotConfigRepository) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanBotConfig(row rowScanner) (*domain.BotConfig, error) {
	var bot domain.BotConfig
	err := row.Scan(
		&bot.ID,
		&bot.Exchange,
		&bot.Symbol,
		&bot.BaseAsset,
		&bot.PriceDecimal,
		&bot.QuantityDecimal,
		&bot.AmountDecimal,
		&bot.CurrencyThrottleMinus,
		&bot.CurrencyThrottlePlus,
		&bot.TokenThrottleMinus,
		&bot.TokenThrottlePlus,
		&bot.ExecutionTimingMin,
		&bot.ExecutionTimingMax,
		&bot.TradeAmountMin,
		&bot.TradeAmountMax,
		&bot.TradeFlow,
		&bot.TradeParam,
		&bot.VolumeLimit24H,
		&bot.Creds.APIKey,
		&bot.Creds.SecretKey,
		&bot.Status,
		&bot.TokenBalance,
		&bot.USDTBalance,
		&bot.CreatedAt,
		&bot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &bot, nil
}
