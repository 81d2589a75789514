// Package audit ведет журнал решений volume-ботов (таблица order_logs).
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillm/volume-bot/internal/domain"
	"github.com/kirillm/volume-bot/pkg/utils"
)

// Log пишет записи журнала и дублирует их в лог процесса.
// Ошибки записи только логируются: журнал не должен ломать торговлю
type Log struct {
	repo   domain.AuditLogRepository
	logger *utils.Logger
	now    func() time.Time
}

// NewLog создает журнал поверх репозитория
func NewLog(repo domain.AuditLogRepository, logger *utils.Logger) *Log {
	if logger == nil {
		logger = utils.Discard()
	}
	return &Log{
		repo:   repo,
		logger: logger.With("component", "audit"),
		now:    time.Now,
	}
}

func (l *Log) Info(ctx context.Context, pair domain.Pair, format string, args ...interface{}) {
	l.write(ctx, pair, domain.LogLevelInfo, nil, fmt.Sprintf(format, args...))
}

func (l *Log) Warning(ctx context.Context, pair domain.Pair, format string, args ...interface{}) {
	l.write(ctx, pair, domain.LogLevelWarning, nil, fmt.Sprintf(format, args...))
}

func (l *Log) Error(ctx context.Context, pair domain.Pair, format string, args ...interface{}) {
	l.write(ctx, pair, domain.LogLevelError, nil, fmt.Sprintf(format, args...))
}

// Trade INFO запись об исполненной сделке с датой сделки
func (l *Log) Trade(ctx context.Context, pair domain.Pair, format string, args ...interface{}) {
	at := l.now()
	l.write(ctx, pair, domain.LogLevelInfo, &at, fmt.Sprintf(format, args...))
}

func (l *Log) write(ctx context.Context, pair domain.Pair, level string, tradeDate *time.Time, msg string) {
	switch level {
	case domain.LogLevelError:
		l.logger.Error("[%s] %s", pair, msg)
	case domain.LogLevelWarning:
		l.logger.Warn("[%s] %s", pair, msg)
	default:
		l.logger.Info("[%s] %s", pair, msg)
	}

	entry := &domain.AuditLogEntry{
		Exchange:  pair.Exchange,
		Symbol:    pair.Symbol,
		Level:     level,
		Message:   msg,
		TradeDate: tradeDate,
		CreatedAt: l.now(),
	}
	if err := l.repo.Save(context.WithoutCancel(ctx), entry); err != nil {
		l.logger.Error("Failed to write audit entry for %s: %v", pair, err)
	}
}

// Entries последние записи пары, новые первыми
func (l *Log) Entries(ctx context.Context, pair domain.Pair, limit int) ([]domain.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	entries, err := l.repo.List(ctx, pair, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log: %w", err)
	}
	return entries, nil
}
