package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/kirillm/volume-bot/internal/domain"
	"github.com/kirillm/volume-bot/internal/storage/repository"
)

// PostgresStorage является фасадом для работы с PostgreSQL через репозитории
type PostgresStorage struct {
	db           *sql.DB
	orders       *repository.OrderRepository
	bots         *repository.BotConfigRepository
	auditLogs    *repository.AuditLogRepository
	resetHistory *repository.ResetHistoryRepository
}

func NewPostgresStorage(host string, port int, user, password, dbname, sslmode string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*PostgresStorage, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDatabaseConnection, err)
	}

	// Настройка connection pool из конфигурации
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return newPostgresStorage(db)
}

// newPostgresStorage проверяет соединение и применяет миграции,
// при ошибке соединение закрывается
func newPostgresStorage(db *sql.DB) (*PostgresStorage, error) {
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", domain.ErrDatabaseConnection, err)
	}

	storage := &PostgresStorage{
		db:           db,
		orders:       repository.NewOrderRepository(db),
		bots:         repository.NewBotConfigRepository(db),
		auditLogs:    repository.NewAuditLogRepository(db),
		resetHistory: repository.NewResetHistoryRepository(db),
	}

	// Запускаем миграции
	if err := storage.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) migrate() error {
	migrations := []string{
		// Настройки volume-ботов, одна строка на пару
		`CREATE TABLE IF NOT EXISTS volume_bot_settings (
			id SERIAL PRIMARY KEY,
			exchange VARCHAR(20) NOT NULL,
			symbol VARCHAR(30) NOT NULL,
			base_asset VARCHAR(20) NOT NULL DEFAULT '',
			price_decimal INTEGER NOT NULL DEFAULT 6,
			quantity_decimal INTEGER NOT NULL DEFAULT 2,
			amount_decimal INTEGER NOT NULL DEFAULT 2,
			currency_throttle_minus DECIMAL(30, 10) NOT NULL DEFAULT 0,
			currency_throttle_plus DECIMAL(30, 10) NOT NULL DEFAULT 0,
			token_throttle_minus DECIMAL(30, 10) NOT NULL DEFAULT 0,
			token_throttle_plus DECIMAL(30, 10) NOT NULL DEFAULT 0,
			execution_timing_min INTEGER NOT NULL DEFAULT 60,
			execution_timing_max INTEGER NOT NULL DEFAULT 120,
			trade_amount_min DECIMAL(30, 10) NOT NULL DEFAULT 0,
			trade_amount_max DECIMAL(30, 10) NOT NULL DEFAULT 0,
			trade_flow VARCHAR(10) NOT NULL DEFAULT 'BUY_SELL',
			trade_param DECIMAL(10, 6) NOT NULL DEFAULT 0.5,
			volume_limit_24h DECIMAL(30, 10) NOT NULL DEFAULT 0,
			api_key VARCHAR(200),
			secret_key VARCHAR(200),
			status VARCHAR(5) NOT NULL DEFAULT 'OFF',
			token_balance DECIMAL(30, 10) NOT NULL DEFAULT 0,
			usdt_balance DECIMAL(30, 10) NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (exchange, symbol)
		)`,
		// Ордера, принятые биржей; терминальные статусы не удаляются
		`CREATE TABLE IF NOT EXISTS orders (
			id SERIAL PRIMARY KEY,
			order_id VARCHAR(100) NOT NULL,
			client_order_id VARCHAR(100),
			exchange VARCHAR(20) NOT NULL,
			symbol VARCHAR(30) NOT NULL,
			side VARCHAR(10) NOT NULL,
			type VARCHAR(10) NOT NULL,
			quantity DECIMAL(30, 10) NOT NULL,
			price DECIMAL(30, 10),
			time_in_force VARCHAR(10),
			status VARCHAR(20) NOT NULL DEFAULT 'NEW',
			is_bot_order BOOLEAN NOT NULL DEFAULT false,
			no_cancel BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (exchange, order_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_pair_status ON orders(exchange, symbol, status)`,
		// Журнал решений ботов
		`CREATE TABLE IF NOT EXISTS order_logs (
			id SERIAL PRIMARY KEY,
			exchange VARCHAR(20) NOT NULL,
			symbol VARCHAR(30) NOT NULL,
			level VARCHAR(10) NOT NULL,
			message TEXT NOT NULL,
			trade_date TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_logs_pair ON order_logs(exchange, symbol, created_at DESC)`,
		// История пересъема снимков балансов
		`CREATE TABLE IF NOT EXISTS reset_balance_history (
			id SERIAL PRIMARY KEY,
			bot_id INTEGER NOT NULL REFERENCES volume_bot_settings(id),
			token_balance DECIMAL(30, 10) NOT NULL,
			usdt_balance DECIMAL(30, 10) NOT NULL,
			reason VARCHAR(30) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}

// Ping проверяет соединение с БД
func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func (s *PostgresStorage) Orders() domain.OrderRepository {
	return s.orders
}

func (s *PostgresStorage) Bots() domain.BotConfigRepository {
	return s.bots
}

func (s *PostgresStorage) AuditLogs() domain.AuditLogRepository {
	return s.auditLogs
}

func (s *PostgresStorage) ResetHistory() domain.ResetHistoryRepository {
	return s.resetHistory
}
