package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillm/volume-bot/internal/domain"
	"github.com/kirillm/volume-bot/internal/storage/memory"
	"github.com/kirillm/volume-bot/pkg/utils"
)

var pair = domain.Pair{Exchange: domain.ExchangeMEXC, Symbol: "LFUSDT"}

func TestLog_Levels(t *testing.T) {
	store := memory.New()
	log := NewLog(store.AuditLogs(), utils.Discard())
	ctx := context.Background()

	log.Info(ctx, pair, "Bot executed %d orders", 2)
	log.Warning(ctx, pair, "Trade skipped - no room for trade")
	log.Error(ctx, pair, "Bot execution failed: %s", "boom")
	log.Trade(ctx, pair, "BUY/SELL executed")

	entries := store.AllLogs()
	want := []struct {
		level   string
		message string
		trade   bool
	}{
		{domain.LogLevelInfo, "Bot executed 2 orders", false},
		{domain.LogLevelWarning, "Trade skipped - no room for trade", false},
		{domain.LogLevelError, "Bot execution failed: boom", false},
		{domain.LogLevelInfo, "BUY/SELL executed", true},
	}
	if len(entries) != len(want) {
		t.Fatalf("entries = %d, want %d", len(entries), len(want))
	}
	for i, w := range want {
		e := entries[i]
		if e.Level != w.level || e.Message != w.message || (e.TradeDate != nil) != w.trade {
			t.Errorf("entry %d = %+v, want %+v", i, e, w)
		}
		if e.Exchange != pair.Exchange || e.Symbol != pair.Symbol {
			t.Errorf("entry %d pair = %s/%s", i, e.Exchange, e.Symbol)
		}
	}
}

func TestLog_EntriesNewestFirst(t *testing.T) {
	store := memory.New()
	log := NewLog(store.AuditLogs(), nil)
	ctx := context.Background()

	other := domain.Pair{Exchange: domain.ExchangeMEXC, Symbol: "ABCUSDT"}
	log.Info(ctx, pair, "first")
	log.Info(ctx, other, "other pair")
	log.Info(ctx, pair, "second")

	entries, err := log.Entries(ctx, pair, 10)
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Message != "second" || entries[1].Message != "first" {
		t.Errorf("Entries() = %+v", entries)
	}
}

type failingRepo struct{}

func (failingRepo) Save(context.Context, *domain.AuditLogEntry) error { return errors.New("db down") }
func (failingRepo) List(context.Context, domain.Pair, int) ([]domain.AuditLogEntry, error) {
	return nil, errors.New("db down")
}

func TestLog_WriteFailureIsSwallowed(t *testing.T) {
	log := NewLog(failingRepo{}, utils.Discard())

	log.Error(context.Background(), pair, "still fine")

	if _, err := log.Entries(context.Background(), pair, 0); err == nil {
		t.Errorf("Entries() error = nil, want error")
	}
}
