package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kirillm/volume-bot/internal/domain"
	"github.com/kirillm/volume-bot/internal/exchange"
	"github.com/kirillm/volume-bot/internal/metrics"
	"github.com/kirillm/volume-bot/pkg/utils"
)

var ErrKillSwitchActive = fmt.Errorf("kill switch is active: %w", domain.ErrEmergencyStop)

// OrderSpec параметры ордера от вызывающего кода
type OrderSpec struct {
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	TimeInForce   string          `json:"timeInForce,omitempty"`
	ClientOrderID string          `json:"clientOrderId,omitempty"`
	IsBotOrder    bool            `json:"isBotOrder"`
	NoCancel      bool            `json:"noCancel"`
	Test          bool            `json:"test,omitempty"` // тестовый endpoint, в БД не пишется
}

func (s *OrderSpec) normalize() error {
	s.Side = strings.ToUpper(s.Side)
	s.Type = strings.ToUpper(s.Type)

	if s.Side != domain.SideBuy && s.Side != domain.SideSell {
		return fmt.Errorf("%w: unknown side %q", domain.ErrInvalidInput, s.Side)
	}
	if !s.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput)
	}

	switch s.Type {
	case domain.OrderTypeLimit:
		if !s.Price.IsPositive() {
			return fmt.Errorf("%w: price is required for LIMIT order", domain.ErrInvalidInput)
		}
		if s.TimeInForce == "" {
			s.TimeInForce = domain.TimeInForceGTC
		}
	case domain.OrderTypeMarket:
		s.Price = decimal.Zero
		s.TimeInForce = ""
	default:
		return fmt.Errorf("%w: unknown order type %q", domain.ErrInvalidInput, s.Type)
	}
	return nil
}

func (s *OrderSpec) request(symbol string) domain.OrderRequest {
	return domain.OrderRequest{
		Symbol:        symbol,
		Side:          s.Side,
		Type:          s.Type,
		Quantity:      s.Quantity,
		Price:         s.Price,
		TimeInForce:   s.TimeInForce,
		ClientOrderID: s.ClientOrderID,
	}
}

func (s *OrderSpec) order(pair domain.Pair, orderID, clientOrderID string) *domain.Order {
	if clientOrderID == "" {
		clientOrderID = s.ClientOrderID
	}
	return &domain.Order{
		OrderID:       orderID,
		ClientOrderID: clientOrderID,
		Exchange:      pair.Exchange,
		Symbol:        pair.Symbol,
		Side:          s.Side,
		Type:          s.Type,
		Quantity:      s.Quantity,
		Price:         s.Price,
		TimeInForce:   s.TimeInForce,
		Status:        domain.OrderStatusNew,
		IsBotOrder:    s.IsBotOrder,
		NoCancel:      s.NoCancel,
	}
}

// FailedOrder заявка из пакета, которую биржа не приняла или которую не удалось сохранить
type FailedOrder struct {
	Spec    OrderSpec `json:"spec"`
	OrderID string    `json:"orderId,omitempty"` // заполнен, если ордер живет на бирже
	Code    int       `json:"code"`
	Msg     string    `json:"msg"`
}

// BatchOutcome итог пакетного размещения
type BatchOutcome struct {
	Saved  []domain.Order `json:"saved"`
	Failed []FailedOrder  `json:"failed"`
}

// OrderIDs идентификаторы всех ордеров, которые биржа приняла
func (b *BatchOutcome) OrderIDs() []string {
	ids := make([]string, 0, len(b.Saved))
	for _, o := range b.Saved {
		ids = append(ids, o.OrderID)
	}
	for _, f := range b.Failed {
		if f.OrderID != "" {
			ids = append(ids, f.OrderID)
		}
	}
	return ids
}

// CancelOutcome итог пакетной отмены
type CancelOutcome struct {
	Canceled []string              `json:"canceled"`
	Failed   []domain.CancelResult `json:"failed"`
}

// OpenOrder открытый ордер биржи, дополненный локальными флагами
type OpenOrder struct {
	domain.ExchangeOrder
	Manual   bool `json:"manual"`
	NoCancel bool `json:"noCancel"`
}

// SyncReport итог сверки статусов
type SyncReport struct {
	Checked int               `json:"checked"`
	Updated int               `json:"updated"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Engine движок ордеров: размещение, отмена и сверка с биржей
type Engine struct {
	registry   *exchange.Registry
	orders     domain.OrderRepository
	bots       domain.BotConfigRepository
	killSwitch *KillSwitch
	logger     *utils.Logger
}

// NewEngine создает движок ордеров
func NewEngine(
	registry *exchange.Registry,
	orders domain.OrderRepository,
	bots domain.BotConfigRepository,
	killSwitch *KillSwitch,
	logger *utils.Logger,
) *Engine {
	if killSwitch == nil {
		killSwitch = NewKillSwitch(logger)
	}
	if logger == nil {
		logger = utils.Discard()
	}
	return &Engine{
		registry:   registry,
		orders:     orders,
		bots:       bots,
		killSwitch: killSwitch,
		logger:     logger.With("component", "execution"),
	}
}

// KillSwitch возвращает kill switch движка
func (e *Engine) KillSwitch() *KillSwitch {
	return e.killSwitch
}

// session находит клиента биржи и ключи пары
func (e *Engine) session(ctx context.Context, pair domain.Pair) (exchange.Exchange, domain.Credentials, error) {
	ex, err := e.registry.Get(pair.Exchange)
	if err != nil {
		return nil, domain.Credentials{}, err
	}

	bot, err := e.bots.GetByPair(ctx, pair)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Credentials{}, fmt.Errorf("%w: no bot settings for %s", domain.ErrMissingCredentials, pair)
	}
	if err != nil {
		return nil, domain.Credentials{}, fmt.Errorf("failed to load bot settings: %w", err)
	}
	if !bot.Creds.Complete() {
		return nil, domain.Credentials{}, fmt.Errorf("%w: %s", domain.ErrMissingCredentials, pair)
	}
	return ex, bot.Creds, nil
}

// CreateOrder размещает один ордер и сохраняет его после подтверждения биржи
func (e *Engine) CreateOrder(ctx context.Context, pair domain.Pair, spec OrderSpec) (*domain.Order, error) {
	if e.killSwitch.IsActive() {
		return nil, ErrKillSwitchActive
	}
	if err := spec.normalize(); err != nil {
		return nil, err
	}

	ex, creds, err := e.session(ctx, pair)
	if err != nil {
		return nil, err
	}

	ack, err := ex.SubmitOrder(ctx, creds, spec.request(pair.Symbol), spec.Test)
	if err != nil {
		metrics.OrdersRejectedTotal.WithLabelValues(pair.Exchange).Inc()
		return nil, fmt.Errorf("failed to submit order: %w", err)
	}

	order := spec.order(pair, ack.OrderID, ack.ClientOrderID)
	if spec.Test {
		order.CreatedAt = time.Now()
		return order, nil
	}

	metrics.OrdersSubmittedTotal.WithLabelValues(pair.Exchange, spec.Side).Inc()
	if err := e.orders.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("order %s accepted by exchange but not stored: %w", ack.OrderID, err)
	}

	e.logger.Info("Order placed: %s %s %s qty=%s price=%s id=%s",
		pair, order.Side, order.Type, order.Quantity, order.Price, order.OrderID)
	return order, nil
}

// CreateBatch размещает ордера одним запросом. Каждая заявка попадает либо в Saved, либо в Failed
func (e *Engine) CreateBatch(ctx context.Context, pair domain.Pair, specs []OrderSpec) (*BatchOutcome, error) {
	if e.killSwitch.IsActive() {
		return nil, ErrKillSwitchActive
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: empty batch", domain.ErrInvalidInput)
	}

	specs = append([]OrderSpec(nil), specs...)
	reqs := make([]domain.OrderRequest, len(specs))
	byClientID := make(map[string]int, len(specs))
	for i := range specs {
		if err := specs[i].normalize(); err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		if specs[i].ClientOrderID == "" {
			specs[i].ClientOrderID = strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		byClientID[specs[i].ClientOrderID] = i
		reqs[i] = specs[i].request(pair.Symbol)
	}

	ex, creds, err := e.session(ctx, pair)
	if err != nil {
		return nil, err
	}

	results, err := ex.SubmitBatch(ctx, creds, reqs)
	if err != nil {
		metrics.OrdersRejectedTotal.WithLabelValues(pair.Exchange).Add(float64(len(specs)))
		return nil, fmt.Errorf("failed to submit batch: %w", err)
	}

	outcome := &BatchOutcome{}
	answered := make([]bool, len(specs))

	for pos, res := range results {
		i, ok := byClientID[res.ClientOrderID]
		if !ok {
			i = pos
		}
		if i >= len(specs) || answered[i] {
			e.logger.Warn("Unmatched batch result for %s: %+v", pair, res)
			continue
		}
		answered[i] = true
		spec := specs[i]

		if res.Failed() {
			metrics.OrdersRejectedTotal.WithLabelValues(pair.Exchange).Inc()
			msg := res.Msg
			if msg == "" {
				msg = "order rejected by exchange"
			}
			outcome.Failed = append(outcome.Failed, FailedOrder{Spec: spec, Code: res.Code, Msg: msg})
			continue
		}

		metrics.OrdersSubmittedTotal.WithLabelValues(pair.Exchange, spec.Side).Inc()
		order := spec.order(pair, res.OrderID, res.ClientOrderID)
		if err := e.orders.Save(ctx, order); err != nil {
			e.logger.Error("Failed to store order %s for %s: %v", res.OrderID, pair, err)
			outcome.Failed = append(outcome.Failed, FailedOrder{
				Spec:    spec,
				OrderID: res.OrderID,
				Code:    domain.CodeUnconfirmed,
				Msg:     "accepted by exchange but not stored: " + err.Error(),
			})
			continue
		}
		outcome.Saved = append(outcome.Saved, *order)
	}

	for i, ok := range answered {
		if !ok {
			outcome.Failed = append(outcome.Failed, FailedOrder{
				Spec: specs[i],
				Code: domain.CodeUnconfirmed,
				Msg:  "no result from exchange",
			})
		}
	}

	return outcome, nil
}

// CancelBatch отменяет ордера пары. Пустой список означает все открытые ордера пары.
// Ордера, уже терминальные локально, попадают в Failed без обращения к бирже
func (e *Engine) CancelBatch(ctx context.Context, pair domain.Pair, orderIDs []string) (*CancelOutcome, error) {
	ex, creds, err := e.session(ctx, pair)
	if err != nil {
		return nil, err
	}

	outcome := &CancelOutcome{}
	toCancel := orderIDs

	if len(orderIDs) > 0 {
		local, err := e.orders.FindByOrderIDs(ctx, pair.Exchange, orderIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load orders: %w", err)
		}
		statuses := make(map[string]string, len(local))
		for _, o := range local {
			statuses[o.OrderID] = o.Status
		}

		toCancel = make([]string, 0, len(orderIDs))
		seen := make(map[string]bool, len(orderIDs))
		for _, id := range orderIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			if st, ok := statuses[id]; ok && IsTerminal(st) {
				outcome.Failed = append(outcome.Failed, domain.CancelResult{
					OrderID: id,
					Status:  st,
					Code:    domain.CodeAlreadyTerminal,
					Msg:     "already " + strings.ToLower(st),
				})
				continue
			}
			toCancel = append(toCancel, id)
		}
		if len(toCancel) == 0 {
			return outcome, nil
		}
	}

	results, err := ex.CancelOrders(ctx, creds, pair.Symbol, toCancel)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel orders: %w", err)
	}

	for _, res := range results {
		if res.Failed() {
			outcome.Failed = append(outcome.Failed, res)
			continue
		}
		outcome.Canceled = append(outcome.Canceled, res.OrderID)
	}

	if len(outcome.Canceled) > 0 {
		if _, err := e.orders.UpdateStatusBatch(ctx, pair.Exchange, outcome.Canceled, domain.OrderStatusCanceled); err != nil {
			return outcome, fmt.Errorf("orders canceled on exchange but not updated locally: %w", err)
		}
	}

	e.logger.Info("Cancel %s: canceled=%d failed=%d", pair, len(outcome.Canceled), len(outcome.Failed))
	return outcome, nil
}

// GetAllOpenOrders список открытых ордеров с биржи. Источник истины биржа,
// локальная БД только помечает ручные ордера и флаг no_cancel
func (e *Engine) GetAllOpenOrders(ctx context.Context, pair domain.Pair) ([]OpenOrder, error) {
	ex, creds, err := e.session(ctx, pair)
	if err != nil {
		return nil, err
	}

	remote, err := ex.GetOpenOrders(ctx, creds, pair.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get open orders: %w", err)
	}
	if len(remote) == 0 {
		return []OpenOrder{}, nil
	}

	ids := make([]string, len(remote))
	for i, o := range remote {
		ids[i] = o.OrderID
	}
	local, err := e.orders.FindByOrderIDs(ctx, pair.Exchange, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	byID := make(map[string]domain.Order, len(local))
	for _, o := range local {
		byID[o.OrderID] = o
	}

	out := make([]OpenOrder, 0, len(remote))
	for _, o := range remote {
		row, ok := byID[o.OrderID]
		out = append(out, OpenOrder{
			ExchangeOrder: o,
			Manual:        !ok || !row.IsBotOrder,
			NoCancel:      ok && row.NoCancel,
		})
	}
	return out, nil
}

// UpdateOrderStatus запрашивает статус ордера на бирже и сохраняет его, если он изменился
func (e *Engine) UpdateOrderStatus(ctx context.Context, pair domain.Pair, orderID string) (*domain.Order, error) {
	ex, creds, err := e.session(ctx, pair)
	if err != nil {
		return nil, err
	}

	order, err := e.orders.GetByOrderID(ctx, pair.Exchange, orderID)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", orderID, err)
	}

	if _, err := e.refresh(ctx, ex, creds, order); err != nil {
		return nil, err
	}
	return order, nil
}

// refresh обновляет order на месте; возвращает true, если статус изменился
func (e *Engine) refresh(ctx context.Context, ex exchange.Exchange, creds domain.Credentials, order *domain.Order) (bool, error) {
	remote, err := ex.GetOrder(ctx, creds, order.Symbol, order.OrderID)
	if err != nil {
		return false, fmt.Errorf("failed to query order %s: %w", order.OrderID, err)
	}

	status, err := MapExchangeStatus(remote.Status)
	if err != nil {
		return false, err
	}
	if status == order.Status {
		return false, nil
	}

	if err := e.orders.UpdateStatus(ctx, order.ID, status); err != nil {
		return false, fmt.Errorf("failed to update order %s: %w", order.OrderID, err)
	}
	e.logger.Debug("Order %s: %s -> %s", order.OrderID, order.Status, status)
	order.Status = status
	return true, nil
}

// SyncOpenOrders сверяет все локально открытые ордера пары с биржей.
// Ошибка по одному ордеру не прерывает сверку остальных
func (e *Engine) SyncOpenOrders(ctx context.Context, pair domain.Pair) (*SyncReport, error) {
	ex, creds, err := e.session(ctx, pair)
	if err != nil {
		return nil, err
	}

	open, err := e.orders.FindByStatus(ctx, pair, OpenStatuses())
	if err != nil {
		return nil, fmt.Errorf("failed to load open orders: %w", err)
	}

	report := &SyncReport{}
	for i := range open {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		changed, err := e.refresh(ctx, ex, creds, &open[i])
		if err != nil {
			if report.Errors == nil {
				report.Errors = make(map[string]string)
			}
			report.Errors[open[i].OrderID] = err.Error()
			continue
		}
		if changed {
			report.Updated++
		}
	}

	if len(report.Errors) > 0 {
		e.logger.Warn("Sync %s: %d of %d orders failed", pair, len(report.Errors), report.Checked)
	}
	return report, nil
}

// MarkCanceled помечает ордера отмененными локально без запроса к бирже
func (e *Engine) MarkCanceled(ctx context.Context, pair domain.Pair, orderIDs []string) (int64, error) {
	n, err := e.orders.UpdateStatusBatch(ctx, pair.Exchange, orderIDs, domain.OrderStatusCanceled)
	if err != nil {
		return 0, fmt.Errorf("failed to mark orders canceled: %w", err)
	}
	return n, nil
}
