package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/kirillm/volume-bot/internal/domain"
)

// ResetHistoryRepository история пересъема снимков балансов
type ResetHistoryRepository struct {
	db *sql.DB
}

// NewResetHistoryRepository создает новый репозиторий истории
func NewResetHistoryRepository(db *sql.DB) *ResetHistoryRepository {
	return &ResetHistoryRepository{db: db}
}

// Save добавляет запись истории
func (r *ResetHistoryRepository) Save(ctx context.Context, record *domain.BalanceResetRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO reset_balance_history (bot_id, token_balance, usdt_balance, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		record.BotID,
		record.TokenBalance,
		record.USDTBalance,
		record.Reason,
		record.CreatedAt,
	).Scan(&record.ID)
}

// ListByBot последние записи по боту
func (r *ResetHistoryRepository) ListByBot(ctx context.Context, botID int64, limit int) ([]domain.BalanceResetRecord, error) {
	query := `
		SELECT id, bot_id, token_balance, usdt_balance, reason, created_at
		FROM reset_balance_history
		WHERE bot_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, botID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.BalanceResetRecord
	for rows.Next() {
		var rec domain.BalanceResetRecord
		if err := rows.Scan(&rec.ID, &rec.BotID, &rec.TokenBalance, &rec.USDTBalance, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
