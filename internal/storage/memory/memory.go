// Package memory хранит данные движка в памяти процесса: dry-run режим и тесты.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillm/volume-bot/internal/domain"
)

// Store in-memory хранилище всех таблиц движка
type Store struct {
	mu sync.RWMutex

	orders []*domain.Order
	bots   map[int64]*domain.BotConfig
	logs   []domain.AuditLogEntry
	resets []domain.BalanceResetRecord

	nextOrderID int64
	nextBotID   int64
	nextLogID   int64
	nextResetID int64
}

// New создает пустое хранилище
func New() *Store {
	return &Store{bots: make(map[int64]*domain.BotConfig)}
}

func (s *Store) Orders() domain.OrderRepository             { return &orderRepo{s} }
func (s *Store) Bots() domain.BotConfigRepository           { return &botRepo{s} }
func (s *Store) AuditLogs() domain.AuditLogRepository       { return &auditRepo{s} }
func (s *Store) ResetHistory() domain.ResetHistoryRepository { return &resetRepo{s} }

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

// PutBot добавляет или заменяет настройки бота; id назначается если не задан
func (s *Store) PutBot(bot domain.BotConfig) *domain.BotConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bot.ID == 0 {
		s.nextBotID++
		bot.ID = s.nextBotID
	} else if bot.ID > s.nextBotID {
		s.nextBotID = bot.ID
	}
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = time.Now()
	}
	bot.UpdatedAt = bot.CreatedAt

	b := bot
	s.bots[b.ID] = &b
	out := b
	return &out
}

// AllOrders копия всех ордеров
func (s *Store) AllOrders() []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out
}

// AllLogs копия журнала в порядке добавления
func (s *Store) AllLogs() []domain.AuditLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

type orderRepo struct{ s *Store }

func (r *orderRepo) Save(_ context.Context, order *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, o := range r.s.orders {
		if o.Exchange == order.Exchange && o.OrderID == order.OrderID {
			return domain.ErrInvalidInput
		}
	}

	r.s.nextOrderID++
	order.ID = r.s.nextOrderID
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	order.UpdatedAt = order.CreatedAt

	o := *order
	r.s.orders = append(r.s.orders, &o)
	return nil
}

func (r *orderRepo) GetByOrderID(_ context.Context, exchange, orderID string) (*domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, o := range r.s.orders {
		if o.Exchange == exchange && o.OrderID == orderID {
			out := *o
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *orderRepo) FindByOrderIDs(_ context.Context, exchange string, orderIDs []string) ([]domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	wanted := make(map[string]bool, len(orderIDs))
	for _, id := range orderIDs {
		wanted[id] = true
	}

	var out []domain.Order
	for _, o := range r.s.orders {
		if o.Exchange == exchange && wanted[o.OrderID] {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *orderRepo) FindByStatus(_ context.Context, pair domain.Pair, statuses []string) ([]domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	wanted := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}

	var out []domain.Order
	for _, o := range r.s.orders {
		if o.Exchange == pair.Exchange && o.Symbol == pair.Symbol && wanted[o.Status] {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *orderRepo) UpdateStatus(_ context.Context, id int64, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, o := range r.s.orders {
		if o.ID == id {
			o.Status = status
			o.UpdatedAt = time.Now()
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *orderRepo) UpdateStatusBatch(_ context.Context, exchange string, orderIDs []string, status string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	wanted := make(map[string]bool, len(orderIDs))
	for _, id := range orderIDs {
		wanted[id] = true
	}

	var n int64
	for _, o := range r.s.orders {
		if o.Exchange == exchange && wanted[o.OrderID] && o.Status != status {
			o.Status = status
			o.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

type botRepo struct{ s *Store }

func (r *botRepo) Get(_ context.Context, id int64) (*domain.BotConfig, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.bots[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *b
	return &out, nil
}

func (r *botRepo) GetByPair(_ context.Context, pair domain.Pair) (*domain.BotConfig, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, b := range r.s.bots {
		if b.Exchange == pair.Exchange && b.Symbol == pair.Symbol {
			out := *b
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *botRepo) GetActive(_ context.Context) ([]domain.BotConfig, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.BotConfig
	for _, b := range r.s.bots {
		if b.Status == domain.BotStatusOn {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *botRepo) UpdateStatus(_ context.Context, id int64, status string) error {
	return r.update(id, func(b *domain.BotConfig) { b.Status = status })
}

func (r *botRepo) UpdateSnapshot(_ context.Context, id int64, tokenBalance, usdtBalance decimal.Decimal) error {
	return r.update(id, func(b *domain.BotConfig) {
		b.TokenBalance = tokenBalance
		b.USDTBalance = usdtBalance
	})
}

func (r *botRepo) UpdateCredentials(_ context.Context, id int64, creds domain.Credentials) error {
	return r.update(id, func(b *domain.BotConfig) { b.Creds = creds })
}

func (r *botRepo) update(id int64, fn func(b *domain.BotConfig)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bots[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(b)
	b.UpdatedAt = time.Now()
	return nil
}

type auditRepo struct{ s *Store }

func (r *auditRepo) Save(_ context.Context, entry *domain.AuditLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextLogID++
	entry.ID = r.s.nextLogID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	r.s.logs = append(r.s.logs, *entry)
	return nil
}

func (r *auditRepo) List(_ context.Context, pair domain.Pair, limit int) ([]domain.AuditLogEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.AuditLogEntry
	for i := len(r.s.logs) - 1; i >= 0; i-- {
		e := r.s.logs[i]
		if e.Exchange != pair.Exchange || e.Symbol != pair.Symbol {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type resetRepo struct{ s *Store }

func (r *resetRepo) Save(_ context.Context, record *domain.BalanceResetRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextResetID++
	record.ID = r.s.nextResetID
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	r.s.resets = append(r.s.resets, *record)
	return nil
}

func (r *resetRepo) ListByBot(_ context.Context, botID int64, limit int) ([]domain.BalanceResetRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.BalanceResetRecord
	for i := len(r.s.resets) - 1; i >= 0; i-- {
		if r.s.resets[i].BotID != botID {
			continue
		}
		out = append(out, r.s.resets[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
