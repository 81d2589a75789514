// Package exchangetest предоставляет биржу в памяти для тестов движка и планировщика.
package exchangetest

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/kirillm/volume-bot/internal/domain"
	"github.com/kirillm/volume-bot/internal/exchange"
)

var _ exchange.Exchange = (*Fake)(nil)

// Коды ошибок, которые возвращает MEXC для неизвестных ордеров
const (
	CodeUnknownOrder  = -2011
	CodeOrderNotExist = -2013
)

// Fake биржа в памяти. Поля-настройки выставляются тестом до вызовов
type Fake struct {
	mu sync.Mutex

	name string

	Balances domain.Balances
	Book     domain.BookTop
	Volume   decimal.Decimal

	BalancesErr error
	BookErr     error
	VolumeErr   error
	SubmitErr   error
	BatchErr    error

	// Reject позволяет отклонить заявку из пакета
	Reject func(i int, req domain.OrderRequest) *domain.BatchResult
	// FillSide ордера этой стороны исполняются сразу при размещении
	FillSide string

	orders    map[string]*domain.ExchangeOrder
	nextID    int
	calls     map[string]int
	submitted []domain.OrderRequest
}

// New создает биржу с заданным идентификатором
func New(name string) *Fake {
	return &Fake{
		name:     name,
		Balances: domain.Balances{},
		orders:   make(map[string]*domain.ExchangeOrder),
		calls:    make(map[string]int),
	}
}

func (f *Fake) Name() string {
	return f.name
}

func (f *Fake) Sign(creds domain.Credentials, payload string) string {
	return creds.SecretKey + ":" + payload
}

// SetBalance задает свободный остаток актива
func (f *Fake) SetBalance(asset string, free decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Balances[asset] = domain.Balance{Asset: asset, Free: free}
}

// AddOrder кладет ордер на биржу (например, ручной ордер пользователя)
func (f *Fake) AddOrder(order domain.ExchangeOrder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := order
	f.orders[o.OrderID] = &o
}

// SetOrderStatus меняет статус ордера на бирже
func (f *Fake) SetOrderStatus(orderID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[orderID]; ok {
		o.Status = status
	}
}

// OrderStatus статус ордера на бирже
func (f *Fake) OrderStatus(orderID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[orderID]; ok {
		return o.Status
	}
	return ""
}

// Calls число вызовов метода
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Submitted все заявки, дошедшие до биржи
func (f *Fake) Submitted() []domain.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.OrderRequest, len(f.submitted))
	copy(out, f.submitted)
	return out
}

func (f *Fake) GetBalances(_ context.Context, _ domain.Credentials) (domain.Balances, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetBalances"]++
	if f.BalancesErr != nil {
		return nil, f.BalancesErr
	}
	out := make(domain.Balances, len(f.Balances))
	for k, v := range f.Balances {
		out[k] = v
	}
	return out, nil
}

func (f *Fake) GetOrderBook(_ context.Context, _ domain.Credentials, _ string, _ int) (*domain.BookTop, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetOrderBook"]++
	if f.BookErr != nil {
		return nil, f.BookErr
	}
	book := f.Book
	return &book, nil
}

func (f *Fake) Get24hVolume(_ context.Context, _ domain.Credentials, symbol string) (*domain.Ticker24h, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Get24hVolume"]++
	if f.VolumeErr != nil {
		return nil, f.VolumeErr
	}
	return &domain.Ticker24h{Symbol: symbol, QuoteVolume: f.Volume}, nil
}

func (f *Fake) SubmitOrder(_ context.Context, _ domain.Credentials, req domain.OrderRequest, test bool) (*domain.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["SubmitOrder"]++
	if f.SubmitErr != nil {
		return nil, f.SubmitErr
	}
	if test {
		return &domain.OrderAck{Symbol: req.Symbol, Side: req.Side, Type: req.Type, Price: req.Price, Quantity: req.Quantity}, nil
	}
	o := f.place(req)
	return &domain.OrderAck{
		OrderID:       o.OrderID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Price:         req.Price,
		Quantity:      req.Quantity,
	}, nil
}

func (f *Fake) SubmitBatch(_ context.Context, _ domain.Credentials, reqs []domain.OrderRequest) ([]domain.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["SubmitBatch"]++
	if f.BatchErr != nil {
		return nil, f.BatchErr
	}

	results := make([]domain.BatchResult, 0, len(reqs))
	for i, r := range reqs {
		if f.Reject != nil {
			if res := f.Reject(i, r); res != nil {
				res.ClientOrderID = r.ClientOrderID
				results = append(results, *res)
				continue
			}
		}
		o := f.place(r)
		results = append(results, domain.BatchResult{OrderID: o.OrderID, ClientOrderID: o.ClientOrderID})
	}
	return results, nil
}

func (f *Fake) place(req domain.OrderRequest) *domain.ExchangeOrder {
	f.nextID++
	f.submitted = append(f.submitted, req)

	status := domain.OrderStatusNew
	executed := decimal.Zero
	if f.FillSide != "" && req.Side == f.FillSide {
		status = domain.OrderStatusFilled
		executed = req.Quantity
	}

	o := &domain.ExchangeOrder{
		OrderID:       "C02__" + strconv.Itoa(f.nextID),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Price:         req.Price,
		OrigQty:       req.Quantity,
		ExecutedQty:   executed,
		Status:        status,
	}
	f.orders[o.OrderID] = o
	return o
}

func (f *Fake) CancelOrders(_ context.Context, _ domain.Credentials, symbol string, orderIDs []string) ([]domain.CancelResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CancelOrders"]++

	if len(orderIDs) == 0 {
		var results []domain.CancelResult
		for _, id := range f.sortedIDs() {
			o := f.orders[id]
			if o.Symbol == symbol && isOpen(o.Status) {
				o.Status = domain.OrderStatusCanceled
				results = append(results, domain.CancelResult{OrderID: id, ClientOrderID: o.ClientOrderID, Status: o.Status})
			}
		}
		return results, nil
	}

	results := make([]domain.CancelResult, 0, len(orderIDs))
	for _, id := range orderIDs {
		o, ok := f.orders[id]
		if !ok || !isOpen(o.Status) {
			results = append(results, domain.CancelResult{OrderID: id, Code: CodeUnknownOrder, Msg: "Unknown order sent."})
			continue
		}
		o.Status = domain.OrderStatusCanceled
		results = append(results, domain.CancelResult{OrderID: id, ClientOrderID: o.ClientOrderID, Status: o.Status})
	}
	return results, nil
}

func (f *Fake) GetOpenOrders(_ context.Context, _ domain.Credentials, symbol string) ([]domain.ExchangeOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetOpenOrders"]++

	var out []domain.ExchangeOrder
	for _, id := range f.sortedIDs() {
		o := f.orders[id]
		if o.Symbol == symbol && isOpen(o.Status) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *Fake) GetOrder(_ context.Context, _ domain.Credentials, _ string, orderID string) (*domain.ExchangeOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetOrder"]++

	o, ok := f.orders[orderID]
	if !ok {
		return nil, &domain.ExchangeError{HTTPStatus: 400, Code: CodeOrderNotExist, Msg: "Order does not exist."}
	}
	out := *o
	return &out, nil
}

func (f *Fake) sortedIDs() []string {
	ids := make([]string, 0, len(f.orders))
	for id := range f.orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func isOpen(status string) bool {
	return status == domain.OrderStatusNew || status == domain.OrderStatusPartiallyFilled
}
