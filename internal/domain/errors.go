package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound возвращается когда запись не найдена
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput возвращается при некорректных входных данных
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientBalance возвращается при недостаточном балансе
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrMissingCredentials возвращается когда у пары нет полного набора ключей
	ErrMissingCredentials = errors.New("missing exchange credentials")

	// ErrUnsupportedExchange возвращается для биржи без зарегистрированного клиента
	ErrUnsupportedExchange = errors.New("unsupported exchange")

	// ErrEmergencyStop возвращается когда активирован kill switch
	ErrEmergencyStop = errors.New("emergency stop activated")

	// ErrExchangeAPI возвращается при ошибке API биржи
	ErrExchangeAPI = errors.New("exchange API error")

	// ErrDatabaseConnection возвращается при ошибке подключения к БД
	ErrDatabaseConnection = errors.New("database connection error")
)

// ExchangeError ошибка, которую вернула сама биржа (code/msg)
type ExchangeError struct {
	HTTPStatus int
	Code       int
	Msg        string
}

func (e *ExchangeError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: code=%d msg=%s", ErrExchangeAPI, e.Code, e.Msg)
	}
	return fmt.Sprintf("%s: http %d: %s", ErrExchangeAPI, e.HTTPStatus, e.Msg)
}

func (e *ExchangeError) Unwrap() error {
	return ErrExchangeAPI
}

// ExchangeMessage достает сообщение биржи из ошибки, если оно есть
func ExchangeMessage(err error) string {
	var exErr *ExchangeError
	if errors.As(err, &exErr) && exErr.Msg != "" {
		return exErr.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
