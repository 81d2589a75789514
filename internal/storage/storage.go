package storage

import (
	"context"

	"github.com/kirillm/volume-bot/internal/domain"
)

// Storage общий интерфейс хранилищ (PostgreSQL и in-memory)
type Storage interface {
	Orders() domain.OrderRepository
	Bots() domain.BotConfigRepository
	AuditLogs() domain.AuditLogRepository
	ResetHistory() domain.ResetHistoryRepository
	Ping(ctx context.Context) error
	Close() error
}

var _ Storage = (*PostgresStorage)(nil)
