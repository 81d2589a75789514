package exchange

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kirillm/volume-bot/internal/domain"
)

// Exchange набор возможностей биржи, которыми пользуются движок ордеров и планировщик
type Exchange interface {
	Name() string
	Sign(creds domain.Credentials, payload string) string

	GetBalances(ctx context.Context, creds domain.Credentials) (domain.Balances, error)
	GetOrderBook(ctx context.Context, creds domain.Credentials, symbol string, depth int) (*domain.BookTop, error)
	Get24hVolume(ctx context.Context, creds domain.Credentials, symbol string) (*domain.Ticker24h, error)

	SubmitOrder(ctx context.Context, creds domain.Credentials, req domain.OrderRequest, test bool) (*domain.OrderAck, error)
	SubmitBatch(ctx context.Context, creds domain.Credentials, reqs []domain.OrderRequest) ([]domain.BatchResult, error)
	// CancelOrders отменяет перечисленные ордера, а при пустом списке все открытые ордера пары
	CancelOrders(ctx context.Context, creds domain.Credentials, symbol string, orderIDs []string) ([]domain.CancelResult, error)
	GetOpenOrders(ctx context.Context, creds domain.Credentials, symbol string) ([]domain.ExchangeOrder, error)
	GetOrder(ctx context.Context, creds domain.Credentials, symbol, orderID string) (*domain.ExchangeOrder, error)
}

// Registry клиенты бирж по идентификатору биржи
type Registry struct {
	mu        sync.RWMutex
	exchanges map[string]Exchange
}

// NewRegistry создает реестр с заданными клиентами
func NewRegistry(exchanges ...Exchange) *Registry {
	r := &Registry{exchanges: make(map[string]Exchange)}
	for _, ex := range exchanges {
		r.Register(ex)
	}
	return r
}

// Register добавляет или заменяет клиента биржи
func (r *Registry) Register(ex Exchange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges[strings.ToUpper(ex.Name())] = ex
}

// Get возвращает клиента по идентификатору биржи
func (r *Registry) Get(name string) (Exchange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ex, ok := r.exchanges[strings.ToUpper(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedExchange, name)
	}
	return ex, nil
}

// Names список зарегистрированных бирж
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.exchanges))
	for name := range r.exchanges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
