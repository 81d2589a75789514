package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillm/volume-bot/internal/audit"
	"github.com/kirillm/volume-bot/internal/domain"
	"github.com/kirillm/volume-bot/internal/exchange"
	"github.com/kirillm/volume-bot/internal/exchange/exchangetest"
	"github.com/kirillm/volume-bot/internal/execution"
	"github.com/kirillm/volume-bot/internal/policy"
	"github.com/kirillm/volume-bot/internal/storage/memory"
	"github.com/kirillm/volume-bot/internal/strategy"
	"github.com/kirillm/volume-bot/pkg/utils"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingAlerts struct {
	mu      sync.Mutex
	stopped []string
	failed  []string
}

func (a *recordingAlerts) BotStopped(_ domain.Pair, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = append(a.stopped, reason)
}

func (a *recordingAlerts) ExecutionFailed(_ domain.Pair, msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed = append(a.failed, msg)
}

type fixture struct {
	sched  *Scheduler
	fake   *exchangetest.Fake
	store  *memory.Store
	alerts *recordingAlerts
	bot    *domain.BotConfig
	clock  time.Time
}

func newBot(symbol string) domain.BotConfig {
	return domain.BotConfig{
		Exchange:              domain.ExchangeMEXC,
		Symbol:                symbol,
		BaseAsset:             strings.TrimSuffix(symbol, "USDT"),
		PriceDecimal:          6,
		QuantityDecimal:       0,
		AmountDecimal:         2,
		CurrencyThrottleMinus: d("5"),
		CurrencyThrottlePlus:  d("10"),
		TokenThrottleMinus:    d("1000"),
		TokenThrottlePlus:     d("1000"),
		ExecutionTimingMin:    30,
		ExecutionTimingMax:    60,
		TradeAmountMin:        d("1.73"),
		TradeAmountMax:        d("1.73"),
		TradeFlow:             domain.TradeFlowBuySell,
		TradeParam:            d("0.5"),
		VolumeLimit24H:        d("50000"),
		Creds:                 domain.Credentials{APIKey: "key", SecretKey: "secret"},
		Status:                domain.BotStatusOn,
		USDTBalance:           d("100"),
		TokenBalance:          d("20000"),
	}
}

func newFixture(t *testing.T, cfg Config, extra ...exchange.Exchange) *fixture {
	t.Helper()

	fake := exchangetest.New(domain.ExchangeMEXC)
	fake.SetBalance("USDT", d("100"))
	fake.SetBalance("LF", d("20000"))
	fake.Book = domain.BookTop{Bid: d("0.000170"), Ask: d("0.000175")}
	fake.Volume = d("1000")

	store := memory.New()
	bot := store.PutBot(newBot("LFUSDT"))

	logger := utils.Discard()
	registry := exchange.NewRegistry(append([]exchange.Exchange{fake}, extra...)...)
	engine := execution.NewEngine(registry, store.Orders(), store.Bots(), nil, logger)
	alerts := &recordingAlerts{}

	sched := New(store.Bots(), registry, engine, audit.NewLog(store.AuditLogs(), logger),
		policy.Default(), strategy.NewPlanner(rand.NewSource(7)), alerts, cfg, logger)

	f := &fixture{sched: sched, fake: fake, store: store, alerts: alerts, bot: bot, clock: time.Unix(1_700_000_000, 0)}
	sched.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) logs(level string) []domain.AuditLogEntry {
	var out []domain.AuditLogEntry
	for _, e := range f.store.AllLogs() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

func (f *fixture) botStatus(t *testing.T, id int64) string {
	t.Helper()
	b, err := f.store.Bots().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	return b.Status
}

func TestScheduler_FirstTickExecutes(t *testing.T) {
	f := newFixture(t, Config{})

	if !f.sched.Tick(context.Background()) {
		t.Fatal("Tick() = false, want true")
	}

	sub := f.fake.Submitted()
	if len(sub) != 2 {
		t.Fatalf("submitted %d orders, want 2", len(sub))
	}
	if sub[0].Side != domain.SideBuy || sub[1].Side != domain.SideSell {
		t.Errorf("legs = %s/%s, want BUY/SELL", sub[0].Side, sub[1].Side)
	}
	for _, r := range sub {
		if !r.Price.Equal(d("0.000173")) || !r.Quantity.Equal(d("10000")) {
			t.Errorf("leg = %s@%s, want 10000@0.000173", r.Quantity, r.Price)
		}
		if r.TimeInForce != domain.TimeInForceGTC || r.Type != domain.OrderTypeLimit {
			t.Errorf("leg type = %s/%s, want LIMIT/GTC", r.Type, r.TimeInForce)
		}
	}

	for _, o := range f.store.AllOrders() {
		if o.Status != domain.OrderStatusCanceled || !o.IsBotOrder {
			t.Errorf("order %s = %s bot=%v, want CANCELED bot order", o.OrderID, o.Status, o.IsBotOrder)
		}
	}

	infos := f.logs(domain.LogLevelInfo)
	if len(infos) != 1 || infos[0].TradeDate == nil {
		t.Errorf("INFO entries = %+v, want one trade entry", infos)
	}

	next, ok := f.sched.NextRun(f.bot.ID)
	if !ok {
		t.Fatal("NextRun() not scheduled")
	}
	if delay := next.Sub(f.clock); delay < 30*time.Second || delay > 60*time.Second {
		t.Errorf("NextRun() delay = %s, want within [30s, 60s]", delay)
	}
	if f.fake.Calls("GetOrderBook") != 1 {
		t.Errorf("GetOrderBook calls = %d, want 1", f.fake.Calls("GetOrderBook"))
	}
}

func TestScheduler_NotDueIsSkipped(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	f.sched.Tick(ctx)
	f.clock = f.clock.Add(10 * time.Second)
	f.sched.Tick(ctx)

	if n := f.fake.Calls("GetBalances"); n != 1 {
		t.Errorf("GetBalances calls = %d, want 1", n)
	}
}

func TestScheduler_OneTickSpread(t *testing.T) {
	f := newFixture(t, Config{})
	f.fake.Book = domain.BookTop{Bid: d("0.000170"), Ask: d("0.000171")}

	f.sched.Tick(context.Background())

	if n := f.fake.Calls("SubmitBatch"); n != 0 {
		t.Errorf("SubmitBatch calls = %d, want 0", n)
	}
	all := f.store.AllLogs()
	if len(all) != 1 || all[0].Level != domain.LogLevelWarning || all[0].Message != "Trade skipped - no room for trade" {
		t.Errorf("audit log = %+v, want exactly one no-room WARNING", all)
	}
	if f.botStatus(t, f.bot.ID) != domain.BotStatusOn {
		t.Errorf("bot switched off on skip")
	}
}

func TestScheduler_DriftStopsBot(t *testing.T) {
	tests := []struct {
		name     string
		usdt     string
		token    string
		wantStop bool
		wantMsg  string
	}{
		{"currency below", "89", "20000", true, "Currency Lower Throttle Bot stopped. Before: 100, Current: 89"},
		{"currency inside", "105", "20000", false, ""},
		{"currency at upper bound", "110", "20000", false, ""},
		{"currency above", "110.01", "20000", true, "Currency Upper Throttle Bot stopped. Before: 100, Current: 110.01"},
		{"token below", "100", "18000", true, "Token Lower Throttle Bot stopped. Before: 20000, Current: 18000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			ctx := context.Background()

			f.sched.Tick(ctx)
			submitted := len(f.fake.Submitted())

			f.fake.SetBalance("USDT", d(tt.usdt))
			f.fake.SetBalance("LF", d(tt.token))
			f.clock = f.clock.Add(2 * time.Minute)
			f.sched.Tick(ctx)

			stopped := f.botStatus(t, f.bot.ID) == domain.BotStatusOff
			if stopped != tt.wantStop {
				t.Fatalf("bot stopped = %v, want %v", stopped, tt.wantStop)
			}
			if !tt.wantStop {
				if len(f.fake.Submitted()) != submitted+2 {
					t.Errorf("second tick did not trade")
				}
				return
			}

			if _, ok := f.sched.NextRun(f.bot.ID); ok {
				t.Errorf("NextRun() still set after stop")
			}
			if len(f.fake.Submitted()) != submitted {
				t.Errorf("orders submitted after drift trip")
			}
			warns := f.logs(domain.LogLevelWarning)
			if len(warns) != 1 || warns[0].Message != tt.wantMsg {
				t.Errorf("WARNING entries = %+v, want %q", warns, tt.wantMsg)
			}
			if len(f.alerts.stopped) != 1 {
				t.Errorf("alerts = %v, want one stop alert", f.alerts.stopped)
			}
		})
	}
}

func TestScheduler_FirstRunSkipsDriftCheck(t *testing.T) {
	f := newFixture(t, Config{})
	f.fake.SetBalance("USDT", d("500"))

	f.sched.Tick(context.Background())

	if f.botStatus(t, f.bot.ID) != domain.BotStatusOn {
		t.Errorf("bot stopped on first run")
	}
}

func TestScheduler_VolumeCap(t *testing.T) {
	f := newFixture(t, Config{})
	f.fake.Volume = d("50000")

	f.sched.Tick(context.Background())

	if f.botStatus(t, f.bot.ID) != domain.BotStatusOff {
		t.Fatal("bot still ON after volume cap")
	}
	if n := f.fake.Calls("SubmitBatch"); n != 0 {
		t.Errorf("SubmitBatch calls = %d, want 0", n)
	}
	warns := f.logs(domain.LogLevelWarning)
	if len(warns) != 1 || !strings.HasPrefix(warns[0].Message, "Bot stopped: 24h volume limit reached") {
		t.Errorf("WARNING entries = %+v", warns)
	}
}

func TestScheduler_InsufficientFunds(t *testing.T) {
	f := newFixture(t, Config{})
	f.fake.SetBalance("USDT", d("0.5"))

	f.sched.Tick(context.Background())

	if n := f.fake.Calls("SubmitBatch"); n != 0 {
		t.Errorf("SubmitBatch calls = %d, want 0", n)
	}
	if f.botStatus(t, f.bot.ID) != domain.BotStatusOn {
		t.Errorf("bot switched off on insufficient funds")
	}
	if _, ok := f.sched.NextRun(f.bot.ID); !ok {
		t.Errorf("bot not rescheduled")
	}
	if len(f.logs(domain.LogLevelWarning)) != 1 {
		t.Errorf("want one WARNING entry")
	}
}

func TestScheduler_InsufficientInventory(t *testing.T) {
	f := newFixture(t, Config{})
	f.fake.SetBalance("LF", d("100"))

	f.sched.Tick(context.Background())

	if n := f.fake.Calls("SubmitBatch"); n != 0 {
		t.Errorf("SubmitBatch calls = %d, want 0", n)
	}
	warns := f.logs(domain.LogLevelWarning)
	if len(warns) != 1 || !strings.Contains(warns[0].Message, "insufficient LF balance") {
		t.Errorf("WARNING entries = %+v", warns)
	}
}

func TestScheduler_BalanceFailureReschedules(t *testing.T) {
	f := newFixture(t, Config{})
	f.fake.BalancesErr = &domain.ExchangeError{HTTPStatus: 400, Code: 700002, Msg: "Signature for this request is not valid."}

	f.sched.Tick(context.Background())

	errs := f.logs(domain.LogLevelError)
	if len(errs) != 1 || !strings.Contains(errs[0].Message, "Signature for this request is not valid.") {
		t.Errorf("ERROR entries = %+v", errs)
	}
	if _, ok := f.sched.NextRun(f.bot.ID); !ok {
		t.Errorf("bot not rescheduled after balance failure")
	}
	if f.botStatus(t, f.bot.ID) != domain.BotStatusOn {
		t.Errorf("bot switched off after balance failure")
	}
}

func TestScheduler_ConfirmsLegsAfterCleanup(t *testing.T) {
	tests := []struct {
		name       string
		optimistic bool
		wantBuy    string
		wantSell   string
	}{
		{"confirm with exchange", false, domain.OrderStatusCanceled, domain.OrderStatusFilled},
		{"optimistic", true, domain.OrderStatusCanceled, domain.OrderStatusCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{OptimisticCancel: tt.optimistic})
			f.fake.FillSide = domain.SideSell

			f.sched.Tick(context.Background())

			orders := f.store.AllOrders()
			if len(orders) != 2 {
				t.Fatalf("stored %d orders, want 2", len(orders))
			}
			for _, o := range orders {
				want := tt.wantBuy
				if o.Side == domain.SideSell {
					want = tt.wantSell
				}
				if o.Status != want {
					t.Errorf("%s status = %s, want %s", o.Side, o.Status, want)
				}
			}
			if tt.optimistic && f.fake.Calls("GetOrder") != 0 {
				t.Errorf("optimistic path queried order status")
			}
		})
	}
}

func TestScheduler_BatchRejectionIsLogged(t *testing.T) {
	f := newFixture(t, Config{})
	f.fake.Reject = func(i int, _ domain.OrderRequest) *domain.BatchResult {
		if i == 1 {
			return &domain.BatchResult{Code: 30004, Msg: "Insufficient position"}
		}
		return nil
	}

	f.sched.Tick(context.Background())

	warns := f.logs(domain.LogLevelWarning)
	if len(warns) != 1 || !strings.Contains(warns[0].Message, "Insufficient position") {
		t.Errorf("WARNING entries = %+v", warns)
	}
	orders := f.store.AllOrders()
	if len(orders) != 1 || orders[0].Status != domain.OrderStatusCanceled {
		t.Errorf("orders = %+v, want one canceled leg", orders)
	}
}

// panicExchange падает на запросе балансов
type panicExchange struct {
	*exchangetest.Fake
}

func (panicExchange) GetBalances(context.Context, domain.Credentials) (domain.Balances, error) {
	panic("boom")
}

func TestScheduler_ErrorIsolation(t *testing.T) {
	broken := panicExchange{exchangetest.New("BROKEN")}
	f := newFixture(t, Config{}, broken)

	unknown := newBot("ABCUSDT")
	unknown.Exchange = "HTX"
	f.store.PutBot(unknown)

	panics := newBot("XYZUSDT")
	panics.Exchange = "BROKEN"
	panicBot := f.store.PutBot(panics)

	f.sched.Tick(context.Background())

	if n := len(f.fake.Submitted()); n != 2 {
		t.Errorf("healthy bot submitted %d orders, want 2", n)
	}
	errs := f.logs(domain.LogLevelError)
	if len(errs) != 2 {
		t.Errorf("ERROR entries = %+v, want 2", errs)
	}
	if _, ok := f.sched.NextRun(panicBot.ID); !ok {
		t.Errorf("panicking bot not rescheduled")
	}
}

func TestScheduler_SkipsWhenInFlight(t *testing.T) {
	f := newFixture(t, Config{})
	f.sched.inFlight.Store(true)

	if f.sched.Tick(context.Background()) {
		t.Error("Tick() = true while a sweep is in flight")
	}
	if n := f.fake.Calls("GetBalances"); n != 0 {
		t.Errorf("GetBalances calls = %d, want 0", n)
	}

	f.sched.inFlight.Store(false)
	if !f.sched.Tick(context.Background()) {
		t.Error("Tick() = false after sweep finished")
	}
}

func TestScheduler_KillSwitchSkipsSweep(t *testing.T) {
	f := newFixture(t, Config{})
	f.sched.engine.KillSwitch().Activate("test")

	f.sched.Tick(context.Background())

	if n := f.fake.Calls("GetBalances"); n != 0 {
		t.Errorf("GetBalances calls = %d, want 0", n)
	}
}

func TestScheduler_IncompleteCredentialsSkipped(t *testing.T) {
	f := newFixture(t, Config{})
	if err := f.store.Bots().UpdateCredentials(context.Background(), f.bot.ID, domain.Credentials{APIKey: "key"}); err != nil {
		t.Fatal(err)
	}

	f.sched.Tick(context.Background())

	if n := f.fake.Calls("GetBalances"); n != 0 {
		t.Errorf("GetBalances calls = %d, want 0", n)
	}
}

func TestScheduler_PrunesInactiveBots(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	f.sched.Tick(ctx)
	if _, ok := f.sched.NextRun(f.bot.ID); !ok {
		t.Fatal("bot not scheduled")
	}

	if err := f.store.Bots().UpdateStatus(ctx, f.bot.ID, domain.BotStatusOff); err != nil {
		t.Fatal(err)
	}
	f.sched.Tick(ctx)

	if _, ok := f.sched.NextRun(f.bot.ID); ok {
		t.Errorf("NextRun() kept for inactive bot")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	f := newFixture(t, Config{Tick: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.sched.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.sched.Start(ctx); err == nil {
		t.Errorf("second Start() error = nil")
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.fake.Calls("SubmitBatch") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	f.sched.Stop()

	if f.fake.Calls("SubmitBatch") == 0 {
		t.Error("scheduler loop never traded")
	}
}

// statusRepo отказывает в записи статуса, пока задан err
type statusRepo struct {
	domain.BotConfigRepository
	mu  sync.Mutex
	err error
}

func (r *statusRepo) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *statusRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	r.mu.Lock()
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.BotConfigRepository.UpdateStatus(ctx, id, status)
}

func TestScheduler_StopWriteFailureKeepsBotBlocked(t *testing.T) {
	f := newFixture(t, Config{})
	repo := &statusRepo{BotConfigRepository: f.store.Bots()}
	f.sched.bots = repo
	ctx := context.Background()

	f.sched.Tick(ctx)
	submitted := len(f.fake.Submitted())
	if submitted != 2 {
		t.Fatalf("first tick submitted %d orders, want 2", submitted)
	}

	repo.setErr(errors.New("db down"))
	f.fake.SetBalance("USDT", d("50"))

	for i := 0; i < 3; i++ {
		f.clock = f.clock.Add(2 * time.Minute)
		f.sched.Tick(ctx)

		if got := len(f.fake.Submitted()); got != submitted {
			t.Fatalf("tick %d: submitted = %d, want %d", i, got, submitted)
		}
		if !f.sched.Stopping(f.bot.ID) {
			t.Fatalf("tick %d: Stopping() = false, want true", i)
		}
	}
	if f.botStatus(t, f.bot.ID) != domain.BotStatusOn {
		t.Fatalf("bot status changed while storage is down")
	}

	repo.setErr(nil)
	f.clock = f.clock.Add(2 * time.Minute)
	f.sched.Tick(ctx)

	if got := f.botStatus(t, f.bot.ID); got != domain.BotStatusOff {
		t.Errorf("bot status = %s, want %s", got, domain.BotStatusOff)
	}
	if f.sched.Stopping(f.bot.ID) {
		t.Errorf("Stopping() = true after status write succeeded")
	}
	if got := len(f.fake.Submitted()); got != submitted {
		t.Errorf("submitted = %d, want %d", got, submitted)
	}
	if len(f.alerts.stopped) != 1 {
		t.Errorf("stop alerts = %d, want 1", len(f.alerts.stopped))
	}
	if warns := f.logs(domain.LogLevelWarning); len(warns) != 1 {
		t.Errorf("WARNING entries = %d, want 1", len(warns))
	}
}

func TestScheduler_RepeatedFailureAlertsOnce(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	tick := func() {
		f.clock = f.clock.Add(2 * time.Minute)
		f.sched.Tick(ctx)
	}

	steps := []struct {
		name       string
		volumeErr  error
		wantAlerts int
	}{
		{"first failure", &domain.ExchangeError{HTTPStatus: 400, Code: 10072, Msg: "Api key info invalid"}, 1},
		{"same failure", &domain.ExchangeError{HTTPStatus: 400, Code: 10072, Msg: "Api key info invalid"}, 1},
		{"new failure", &domain.ExchangeError{HTTPStatus: 429, Code: 429, Msg: "Too many requests"}, 2},
		{"recovered", nil, 2},
		{"failure after recovery", &domain.ExchangeError{HTTPStatus: 429, Code: 429, Msg: "Too many requests"}, 3},
	}

	for _, st := range steps {
		f.fake.VolumeErr = st.volumeErr
		tick()
		if got := len(f.alerts.failed); got != st.wantAlerts {
			t.Errorf("%s: alerts = %d, want %d", st.name, got, st.wantAlerts)
		}
	}

	if errs := f.logs(domain.LogLevelError); len(errs) != 4 {
		t.Errorf("ERROR entries = %d, want 4", len(errs))
	}
}
