package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kirillm/volume-bot/internal/domain"
	"github.com/kirillm/volume-bot/internal/metrics"
	"github.com/kirillm/volume-bot/pkg/utils"
)

const (
	MEXCBaseURL      = "https://api.mexc.com"
	mexcAPIKeyHeader = "X-MEXC-APIKEY"
	mexcRecvWindow   = "5000"
)

// MEXCConfig настройки клиента MEXC
type MEXCConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	Retry          RetryPolicy
}

// MEXCClient клиент spot API v3 биржи MEXC. Ключи передаются в каждый вызов,
// поэтому один клиент обслуживает всех ботов
type MEXCClient struct {
	baseURL string
	client  *http.Client
	limiter *Limiter
	retry   RetryPolicy
	cb      *gobreaker.CircuitBreaker
	logger  *utils.Logger
	now     func() time.Time
}

// NewMEXCClient создает клиента; limiter общий для всех клиентов процесса
func NewMEXCClient(cfg MEXCConfig, limiter *Limiter, logger *utils.Logger) *MEXCClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = MEXCBaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	c := &MEXCClient{
		baseURL: cfg.BaseURL,
		client:  NewHTTPClient(cfg.RequestTimeout),
		limiter: limiter,
		retry:   cfg.Retry,
		logger:  logger,
		now:     time.Now,
	}

	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mexc-api",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker '%s' changed from %s to %s", name, from, to)
		},
	})

	return c
}

// breakerSuccess ответ биржи (даже с ошибкой) означает, что биржа доступна
func breakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var exErr *domain.ExchangeError
	return errors.As(err, &exErr)
}

func (c *MEXCClient) Name() string {
	return domain.ExchangeMEXC
}

// Sign HMAC-SHA256 от строки запроса в hex
func (c *MEXCClient) Sign(creds domain.Credentials, payload string) string {
	h := hmac.New(sha256.New, []byte(creds.SecretKey))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// GetBalances возвращает свободные остатки по всем активам
func (c *MEXCClient) GetBalances(ctx context.Context, creds domain.Credentials) (domain.Balances, error) {
	body, err := c.do(ctx, creds, http.MethodGet, "/api/v3/account", newQuery(), true)
	if err != nil {
		return nil, err
	}

	var account mexcAccount
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	balances := make(domain.Balances, len(account.Balances))
	for _, b := range account.Balances {
		free := b.Available
		if free == "" {
			free = b.Free
		}
		balances[b.Asset] = domain.Balance{
			Asset:  b.Asset,
			Free:   dec(free),
			Locked: dec(b.Locked),
		}
	}
	return balances, nil
}

// GetOrderBook возвращает лучшие bid/ask
func (c *MEXCClient) GetOrderBook(ctx context.Context, creds domain.Credentials, symbol string, depth int) (*domain.BookTop, error) {
	if depth <= 0 {
		depth = 1
	}
	q := newQuery().add("symbol", symbol).add("limit", strconv.Itoa(depth))
	body, err := c.do(ctx, creds, http.MethodGet, "/api/v3/depth", q, false)
	if err != nil {
		return nil, err
	}

	var book mexcDepth
	if err := json.Unmarshal(body, &book); err != nil {
		return nil, fmt.Errorf("failed to unmarshal depth: %w", err)
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 || len(book.Bids[0]) < 2 || len(book.Asks[0]) < 2 {
		return nil, fmt.Errorf("empty order book for %s", symbol)
	}

	return &domain.BookTop{
		Bid:    dec(book.Bids[0][0]),
		BidQty: dec(book.Bids[0][1]),
		Ask:    dec(book.Asks[0][0]),
		AskQty: dec(book.Asks[0][1]),
	}, nil
}

// Get24hVolume суточный объем пары
func (c *MEXCClient) Get24hVolume(ctx context.Context, creds domain.Credentials, symbol string) (*domain.Ticker24h, error) {
	body, err := c.do(ctx, creds, http.MethodGet, "/api/v3/ticker/24hr", newQuery().add("symbol", symbol), false)
	if err != nil {
		return nil, err
	}

	var ticker mexcTicker
	if err := json.Unmarshal(body, &ticker); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ticker: %w", err)
	}

	return &domain.Ticker24h{
		Symbol:      ticker.Symbol,
		Volume:      dec(ticker.Volume),
		QuoteVolume: dec(ticker.QuoteVolume),
	}, nil
}

// SubmitOrder размещает ордер; test=true отправляет его в тестовый endpoint
func (c *MEXCClient) SubmitOrder(ctx context.Context, creds domain.Credentials, req domain.OrderRequest, test bool) (*domain.OrderAck, error) {
	q := newQuery().
		add("symbol", req.Symbol).
		add("side", req.Side).
		add("type", req.Type).
		add("quantity", req.Quantity.String())
	if req.Type == domain.OrderTypeLimit {
		q.add("price", req.Price.String())
	}
	if req.ClientOrderID != "" {
		q.add("newClientOrderId", req.ClientOrderID)
	}

	path := "/api/v3/order"
	if test {
		path = "/api/v3/order/test"
	}

	body, err := c.do(ctx, creds, http.MethodPost, path, q, true)
	if err != nil {
		return nil, err
	}

	var o mexcOrder
	if err := json.Unmarshal(body, &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	if !test && o.OrderID == "" {
		return nil, &domain.ExchangeError{HTTPStatus: http.StatusOK, Code: domain.CodeUnconfirmed, Msg: "order id missing in response"}
	}

	clientID := o.clientID()
	if clientID == "" {
		clientID = req.ClientOrderID
	}

	return &domain.OrderAck{
		OrderID:       string(o.OrderID),
		ClientOrderID: clientID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Price:         req.Price,
		Quantity:      req.Quantity,
		TransactTime:  o.TransactTime,
	}, nil
}

// SubmitBatch размещает пакет ордеров одним запросом. Результат выровнен по индексам reqs
func (c *MEXCClient) SubmitBatch(ctx context.Context, creds domain.Credentials, reqs []domain.OrderRequest) ([]domain.BatchResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	items := make([]mexcBatchItem, 0, len(reqs))
	for _, r := range reqs {
		item := mexcBatchItem{
			Symbol:           r.Symbol,
			Side:             r.Side,
			Type:             r.Type,
			Quantity:         r.Quantity.String(),
			NewClientOrderID: r.ClientOrderID,
		}
		if r.Type == domain.OrderTypeLimit {
			item.Price = r.Price.String()
			item.TimeInForce = r.TimeInForce
		}
		items = append(items, item)
	}

	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch: %w", err)
	}

	body, err := c.do(ctx, creds, http.MethodPost, "/api/v3/batchOrders", newQuery().add("batchOrders", string(payload)), true)
	if err != nil {
		return nil, err
	}

	var resp []mexcOrder
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch response: %w", err)
	}

	results := make([]domain.BatchResult, len(reqs))
	byClientID := make(map[string]int, len(reqs))
	for i, r := range reqs {
		results[i] = domain.BatchResult{
			ClientOrderID: r.ClientOrderID,
			Code:          domain.CodeUnconfirmed,
			Msg:           "order missing in batch response",
		}
		if r.ClientOrderID != "" {
			byClientID[r.ClientOrderID] = i
		}
	}

	for idx, item := range resp {
		target := idx
		if i, ok := byClientID[item.clientID()]; ok {
			target = i
		}
		if target >= len(results) {
			continue
		}

		res := domain.BatchResult{
			OrderID:       string(item.OrderID),
			ClientOrderID: results[target].ClientOrderID,
			Code:          item.Code,
			Msg:           item.Msg,
		}
		if res.Code == 0 && res.OrderID == "" {
			res.Code = domain.CodeUnconfirmed
			res.Msg = "order id missing in response"
		}
		results[target] = res
	}

	return results, nil
}

// CancelOrders отменяет ордера по одному; ошибки по отдельным ордерам возвращаются как данные
func (c *MEXCClient) CancelOrders(ctx context.Context, creds domain.Credentials, symbol string, orderIDs []string) ([]domain.CancelResult, error) {
	if len(orderIDs) == 0 {
		return c.cancelAll(ctx, creds, symbol)
	}

	results := make([]domain.CancelResult, 0, len(orderIDs))
	for _, id := range orderIDs {
		q := newQuery().add("symbol", symbol).add("orderId", id)
		body, err := c.do(ctx, creds, http.MethodDelete, "/api/v3/order", q, true)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			results = append(results, cancelFailure(id, err))
			continue
		}

		var o mexcOrder
		if err := json.Unmarshal(body, &o); err != nil {
			results = append(results, cancelFailure(id, fmt.Errorf("failed to unmarshal cancel: %w", err)))
			continue
		}
		results = append(results, domain.CancelResult{
			OrderID:       id,
			ClientOrderID: o.clientID(),
			Status:        o.Status,
		})
	}
	return results, nil
}

func (c *MEXCClient) cancelAll(ctx context.Context, creds domain.Credentials, symbol string) ([]domain.CancelResult, error) {
	body, err := c.do(ctx, creds, http.MethodDelete, "/api/v3/openOrders", newQuery().add("symbol", symbol), true)
	if err != nil {
		return nil, err
	}

	var orders []mexcOrder
	if err := json.Unmarshal(body, &orders); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cancel all: %w", err)
	}

	results := make([]domain.CancelResult, 0, len(orders))
	for _, o := range orders {
		results = append(results, domain.CancelResult{
			OrderID:       string(o.OrderID),
			ClientOrderID: o.clientID(),
			Status:        o.Status,
			Code:          o.Code,
			Msg:           o.Msg,
		})
	}
	return results, nil
}

func cancelFailure(orderID string, err error) domain.CancelResult {
	res := domain.CancelResult{OrderID: orderID, Code: domain.CodeUnconfirmed, Msg: err.Error()}
	var exErr *domain.ExchangeError
	if errors.As(err, &exErr) {
		res.Msg = exErr.Msg
		if exErr.Code != 0 {
			res.Code = exErr.Code
		}
	}
	return res
}

// GetOpenOrders открытые ордера пары
func (c *MEXCClient) GetOpenOrders(ctx context.Context, creds domain.Credentials, symbol string) ([]domain.ExchangeOrder, error) {
	body, err := c.do(ctx, creds, http.MethodGet, "/api/v3/openOrders", newQuery().add("symbol", symbol), true)
	if err != nil {
		return nil, err
	}

	var orders []mexcOrder
	if err := json.Unmarshal(body, &orders); err != nil {
		return nil, fmt.Errorf("failed to unmarshal open orders: %w", err)
	}

	result := make([]domain.ExchangeOrder, 0, len(orders))
	for _, o := range orders {
		result = append(result, o.toDomain())
	}
	return result, nil
}

// GetOrder состояние ордера на бирже
func (c *MEXCClient) GetOrder(ctx context.Context, creds domain.Credentials, symbol, orderID string) (*domain.ExchangeOrder, error) {
	q := newQuery().add("symbol", symbol).add("orderId", orderID)
	body, err := c.do(ctx, creds, http.MethodGet, "/api/v3/order", q, true)
	if err != nil {
		return nil, err
	}

	var o mexcOrder
	if err := json.Unmarshal(body, &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	order := o.toDomain()
	if order.OrderID == "" {
		order.OrderID = orderID
	}
	return &order, nil
}

// do подписывает (если нужно) и отправляет запрос через общий limiter с повторами
func (c *MEXCClient) do(ctx context.Context, creds domain.Credentials, method, path string, q *query, signed bool) ([]byte, error) {
	target := c.baseURL + path
	if signed {
		if !creds.Complete() {
			return nil, domain.ErrMissingCredentials
		}
		q.add("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10)).
			add("recvWindow", mexcRecvWindow)
		payload := q.encode()
		target += "?" + payload + "&signature=" + c.Sign(creds, payload)
	} else if payload := q.encode(); payload != "" {
		target += "?" + payload
	}

	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.send(ctx, creds, method, path, target)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (c *MEXCClient) send(ctx context.Context, creds domain.Credentials, method, path, target string) ([]byte, error) {
	attempts := c.retry.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var (
			body   []byte
			status int
		)
		err := c.limiter.Do(ctx, func() error {
			var rtErr error
			body, status, rtErr = c.roundTrip(ctx, creds, method, path, target)
			return rtErr
		})
		if err == nil {
			if apiErr := parseAPIError(status, body); apiErr != nil {
				return nil, apiErr
			}
			return body, nil
		}

		lastErr = err
		if !isTransient(err) || attempt == attempts || ctx.Err() != nil {
			break
		}

		metrics.ExchangeRetriesTotal.WithLabelValues(domain.ExchangeMEXC, path).Inc()
		c.logger.Warn("MEXC %s %s failed (attempt %d/%d): %v, retrying in %s",
			method, path, attempt, attempts, err, c.retry.Delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retry.Delay):
		}
	}

	return nil, fmt.Errorf("mexc %s %s: %w", method, path, lastErr)
}

func (c *MEXCClient) roundTrip(ctx context.Context, creds domain.Credentials, method, path, target string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if creds.APIKey != "" {
		req.Header.Set(mexcAPIKeyHeader, creds.APIKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.ExchangeRequestDuration.WithLabelValues(domain.ExchangeMEXC, path).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ExchangeRequestsTotal.WithLabelValues(domain.ExchangeMEXC, path, "error").Inc()
		return nil, 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	metrics.ExchangeRequestsTotal.WithLabelValues(domain.ExchangeMEXC, path, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}
