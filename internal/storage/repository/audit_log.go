package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/kirillm/volume-bot/internal/domain"
)

// AuditLogRepository реализует журнал решений ботов
type AuditLogRepository struct {
	db *sql.DB
}

// NewAuditLogRepository создает новый репозиторий для журнала
func NewAuditLogRepository(db *sql.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Save добавляет запись
func (r *AuditLogRepository) Save(ctx context.Context, entry *domain.AuditLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO order_logs (exchange, symbol, level, message, trade_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var tradeDate sql.NullTime
	if entry.TradeDate != nil {
		tradeDate = sql.NullTime{Time: *entry.TradeDate, Valid: true}
	}
	return r.db.QueryRowContext(ctx, query,
		entry.Exchange,
		entry.Symbol,
		entry.Level,
		entry.Message,
		tradeDate,
		entry.CreatedAt,
	).Scan(&entry.ID)
}

// List последние записи по паре, новые первыми
func (r *AuditLogRepository) List(ctx context.Context, pair domain.Pair, limit int) ([]domain.AuditLogEntry, error) {
	query := `
		SELECT id, exchange, symbol, level, message, trade_date, created_at
		FROM order_logs
		WHERE exchange = $1 AND symbol = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, pair.Exchange, pair.Symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditLogEntry
	for rows.Next() {
		var (
			entry     domain.AuditLogEntry
			tradeDate sql.NullTime
		)
		if err := rows.Scan(&entry.ID, &entry.Exchange, &entry.Symbol, &entry.Level, &entry.Message, &tradeDate, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if tradeDate.Valid {
			t := tradeDate.Time
			entry.TradeDate = &t
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
