package exchange

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kirillm/volume-bot/internal/domain"
)

// query параметры запроса в порядке добавления: подписывается ровно та строка, что уходит на биржу
type query struct {
	keys   []string
	values []string
}

func newQuery() *query {
	return &query{}
}

func (q *query) add(key, value string) *query {
	q.keys = append(q.keys, key)
	q.values = append(q.values, value)
	return q
}

func (q *query) encode() string {
	var sb strings.Builder
	for i, key := range q.keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(q.values[i]))
	}
	return sb.String()
}

// flexString принимает и строку, и число (orderId у MEXC бывает обоими)
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

type mexcAPIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type mexcAccount struct {
	Balances []struct {
		Asset     string `json:"asset"`
		Free      string `json:"free"`
		Locked    string `json:"locked"`
		Available string `json:"available"`
	} `json:"balances"`
}

type mexcDepth struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

type mexcTicker struct {
	Symbol      string `json:"symbol"`
	Volume      string `json:"volume"`
	QuoteVolume string `json:"quoteVolume"`
}

type mexcOrder struct {
	Symbol            string     `json:"symbol"`
	OrderID           flexString `json:"orderId"`
	ClientOrderID     string     `json:"clientOrderId"`
	OrigClientOrderID string     `json:"origClientOrderId"`
	NewClientOrderID  string     `json:"newClientOrderId"`
	Price             string     `json:"price"`
	OrigQty           string     `json:"origQty"`
	ExecutedQty       string     `json:"executedQty"`
	Status            string     `json:"status"`
	Type              string     `json:"type"`
	Side              string     `json:"side"`
	Time              int64      `json:"time"`
	TransactTime      int64      `json:"transactTime"`
	Code              int        `json:"code"`
	Msg               string     `json:"msg"`
}

func (o mexcOrder) clientID() string {
	switch {
	case o.ClientOrderID != "":
		return o.ClientOrderID
	case o.NewClientOrderID != "":
		return o.NewClientOrderID
	default:
		return o.OrigClientOrderID
	}
}

func (o mexcOrder) toDomain() domain.ExchangeOrder {
	return domain.ExchangeOrder{
		OrderID:       string(o.OrderID),
		ClientOrderID: o.clientID(),
		Symbol:        o.Symbol,
		Side:          o.Side,
		Type:          o.Type,
		Price:         dec(o.Price),
		OrigQty:       dec(o.OrigQty),
		ExecutedQty:   dec(o.ExecutedQty),
		Status:        o.Status,
		Time:          o.Time,
	}
}

type mexcBatchItem struct {
	Symbol           string `json:"symbol"`
	Side             string `json:"side"`
	Type             string `json:"type"`
	Quantity         string `json:"quantity"`
	Price            string `json:"price,omitempty"`
	TimeInForce      string `json:"timeInForce,omitempty"`
	NewClientOrderID string `json:"newClientOrderId,omitempty"`
}

// parseAPIError извлекает ошибку биржи из ответа; nil если ответ успешный
func parseAPIError(status int, body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var apiErr mexcAPIError
		if err := json.Unmarshal(trimmed, &apiErr); err == nil && apiErr.Code != 0 && apiErr.Code != 200 {
			return &domain.ExchangeError{HTTPStatus: status, Code: apiErr.Code, Msg: apiErr.Msg}
		}
	}
	if status >= 400 {
		msg := string(trimmed)
		if len(msg) > 256 {
			msg = msg[:256]
		}
		return &domain.ExchangeError{HTTPStatus: status, Msg: msg}
	}
	return nil
}

// dec разбирает число биржи; пустая или битая строка дает ноль
func dec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
