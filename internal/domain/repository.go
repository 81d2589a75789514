package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderRepository определяет интерфейс для работы с ордерами
type OrderRepository interface {
	Save(ctx context.Context, order *Order) error
	GetByOrderID(ctx context.Context, exchange, orderID string) (*Order, error)
	FindByOrderIDs(ctx context.Context, exchange string, orderIDs []string) ([]Order, error)
	FindByStatus(ctx context.Context, pair Pair, statuses []string) ([]Order, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	UpdateStatusBatch(ctx context.Context, exchange string, orderIDs []string, status string) (int64, error)
}

// BotConfigRepository определяет интерфейс для работы с настройками ботов
type BotConfigRepository interface {
	Get(ctx context.Context, id int64) (*BotConfig, error)
	GetByPair(ctx context.Context, pair Pair) (*BotConfig, error)
	GetActive(ctx context.Context) ([]BotConfig, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	UpdateSnapshot(ctx context.Context, id int64, tokenBalance, usdtBalance decimal.Decimal) error
	UpdateCredentials(ctx context.Context, id int64, creds Credentials) error
}

// AuditLogRepository определяет интерфейс журнала решений
type AuditLogRepository interface {
	Save(ctx context.Context, entry *AuditLogEntry) error
	List(ctx context.Context, pair Pair, limit int) ([]AuditLogEntry, error)
}

// ResetHistoryRepository определяет интерфейс истории пересъема балансов
type ResetHistoryRepository interface {
	Save(ctx context.Context, record *BalanceResetRecord) error
	ListByBot(ctx context.Context, botID int64, limit int) ([]BalanceResetRecord, error)
}
