package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kirillm/volume-bot/internal/domain"
	"github.com/kirillm/volume-bot/internal/execution"
)

type PairRequest struct {
	Exchange string `json:"exchange" validate:"required,max=16"`
	Symbol   string `json:"symbol" validate:"required,alphanum,max=32"`
}

func (p PairRequest) Pair() domain.Pair {
	return domain.Pair{
		Exchange: strings.ToUpper(strings.TrimSpace(p.Exchange)),
		Symbol:   strings.ToUpper(strings.TrimSpace(p.Symbol)),
	}
}

type OrderRequest struct {
	Side          string          `json:"side" validate:"required,oneof=BUY SELL buy sell"`
	Type          string          `json:"type" validate:"required,oneof=LIMIT MARKET limit market"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	TimeInForce   string          `json:"timeInForce" validate:"omitempty,oneof=GTC IOC FOK"`
	ClientOrderID string          `json:"clientOrderId" validate:"omitempty,max=32"`
	IsBotOrder    bool            `json:"isBotOrder"`
	NoCancel      bool            `json:"noCancel"`
	Test          bool            `json:"test"`
}

func (o OrderRequest) Spec() execution.OrderSpec {
	return execution.OrderSpec{
		Side:          o.Side,
		Type:          o.Type,
		Quantity:      o.Quantity,
		Price:         o.Price,
		TimeInForce:   o.TimeInForce,
		ClientOrderID: o.ClientOrderID,
		IsBotOrder:    o.IsBotOrder,
		NoCancel:      o.NoCancel,
		Test:          o.Test,
	}
}

type CreateOrderRequest struct {
	PairRequest
	OrderRequest
}

// BatchRequest MEXC принимает не больше 20 заявок за раз
type BatchRequest struct {
	PairRequest
	Orders []OrderRequest `json:"orders" validate:"required,min=1,max=20,dive"`
}

// CancelRequest пустой orderIds отменяет все открытые ордера пары
type CancelRequest struct {
	PairRequest
	OrderIDs []string `json:"orderIds" validate:"max=100,dive,required"`
}

type CredentialsRequest struct {
	APIKey    string `json:"apiKey" validate:"max=128"`
	SecretKey string `json:"secretKey" validate:"max=128"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ON OFF"`
}

type KillSwitchRequest struct {
	Reason string `json:"reason" validate:"required,max=256"`
}

type ScheduleResponse struct {
	BotID     int64  `json:"botId"`
	Scheduled bool   `json:"scheduled"`
	NextRun   string `json:"nextRun,omitempty"`
}

// queryPair читает exchange и symbol из query string
func (s *Server) queryPair(r *http.Request) (domain.Pair, error) {
	req := PairRequest{
		Exchange: getQueryParam(r, "exchange", domain.ExchangeMEXC),
		Symbol:   r.URL.Query().Get("symbol"),
	}
	if err := s.validate.Struct(req); err != nil {
		return domain.Pair{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return req.Pair(), nil
}
