package execution

import (
	"fmt"
	"strings"

	"github.com/kirillm/volume-bot/internal/domain"
)

var exchangeStatuses = map[string]string{
	"NEW":                domain.OrderStatusNew,
	"PARTIALLY_FILLED":   domain.OrderStatusPartiallyFilled,
	"FILLED":             domain.OrderStatusFilled,
	"CANCELED":           domain.OrderStatusCanceled,
	"CANCELLED":          domain.OrderStatusCanceled,
	"PARTIALLY_CANCELED": domain.OrderStatusCanceled,
	"EXPIRED":            domain.OrderStatusExpired,
	"REJECTED":           domain.OrderStatusExpired,
}

// MapExchangeStatus переводит статус биржи в локальный статус ордера
func MapExchangeStatus(status string) (string, error) {
	local, ok := exchangeStatuses[strings.ToUpper(strings.TrimSpace(status))]
	if !ok {
		return "", fmt.Errorf("unknown exchange order status %q", status)
	}
	return local, nil
}

// IsTerminal ордер больше не может измениться на бирже
func IsTerminal(status string) bool {
	switch status {
	case domain.OrderStatusFilled, domain.OrderStatusCanceled, domain.OrderStatusExpired:
		return true
	}
	return false
}

// OpenStatuses статусы ордеров, которые еще живут на бирже
func OpenStatuses() []string {
	return []string{domain.OrderStatusNew, domain.OrderStatusPartiallyFilled}
}
