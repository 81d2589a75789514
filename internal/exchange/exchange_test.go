package exchange

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/url"
	"syscall"
	"testing"

	"github.com/kirillm/volume-bot/internal/domain"
	"github.com/kirillm/volume-bot/pkg/utils"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection reset", &url.Error{Op: "Get", URL: "x", Err: syscall.ECONNRESET}, true},
		{"broken pipe", fmt.Errorf("write: %w", syscall.EPIPE), true},
		{"eof", &url.Error{Op: "Get", URL: "x", Err: io.EOF}, true},
		{"timeout", &url.Error{Op: "Get", URL: "x", Err: timeoutErr{}}, true},
		{"tls record", tls.RecordHeaderError{Msg: "bad record"}, true},
		{"tls handshake text", errors.New("remote error: tls: handshake failure"), true},
		{"canceled", fmt.Errorf("request: %w", context.Canceled), false},
		{"exchange error", &domain.ExchangeError{HTTPStatus: 400, Code: 700002, Msg: "bad signature"}, false},
		{"plain error", errors.New("invalid character"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransient(tt.err); got != tt.want {
				t.Errorf("isTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBreakerSuccess(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"exchange error", fmt.Errorf("wrapped: %w", &domain.ExchangeError{Code: -2011}), true},
		{"canceled", context.Canceled, true},
		{"transport", errors.New("connection reset by peer"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := breakerSuccess(tt.err); got != tt.want {
				t.Errorf("breakerSuccess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	mexc := NewMEXCClient(MEXCConfig{}, NewLimiter(0), utils.Discard())
	r := NewRegistry(mexc)

	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"exact", "MEXC", false},
		{"lowercase", "mexc", false},
		{"unknown", "HTX", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, err := r.Get(tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Get(%s) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, domain.ErrUnsupportedExchange) {
					t.Errorf("Get(%s) error = %v, want ErrUnsupportedExchange", tt.id, err)
				}
				return
			}
			if ex.Name() != domain.ExchangeMEXC {
				t.Errorf("Get(%s).Name() = %s", tt.id, ex.Name())
			}
		})
	}

	if names := r.Names(); len(names) != 1 || names[0] != "MEXC" {
		t.Errorf("Names() = %v", names)
	}
}

func TestQueryEncodeKeepsOrder(t *testing.T) {
	q := newQuery().add("symbol", "LFUSDT").add("batchOrders", `[{"a":"b c"}]`).add("timestamp", "1")
	want := "symbol=LFUSDT&batchOrders=%5B%7B%22a%22%3A%22b+c%22%7D%5D&timestamp=1"
	if got := q.encode(); got != want {
		t.Errorf("encode() = %q, want %q", got, want)
	}
}
