// Package scheduler запускает volume-ботов по их случайному расписанию.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillm/volume-bot/internal/audit"
	"github.com/kirillm/volume-bot/internal/domain"
	"github.com/kirillm/volume-bot/internal/exchange"
	"github.com/kirillm/volume-bot/internal/execution"
	"github.com/kirillm/volume-bot/internal/metrics"
	"github.com/kirillm/volume-bot/internal/policy"
	"github.com/kirillm/volume-bot/internal/strategy"
	"github.com/kirillm/volume-bot/pkg/utils"
)

// Alerts оповещения оператора
type Alerts interface {
	BotStopped(pair domain.Pair, reason string)
	ExecutionFailed(pair domain.Pair, msg string)
}

type nopAlerts struct{}

func (nopAlerts) BotStopped(domain.Pair, string)      {}
func (nopAlerts) ExecutionFailed(domain.Pair, string) {}

// Config настройки планировщика
type Config struct {
	Tick time.Duration
	// OptimisticCancel после cleanup-отмены помечает ордера CANCELED без запроса статуса
	OptimisticCancel bool
}

// Scheduler периодически обходит включенных ботов. Одновременно идет не больше одного обхода
type Scheduler struct {
	bots     domain.BotConfigRepository
	registry *exchange.Registry
	engine   *execution.Engine
	audit    *audit.Log
	policy   *policy.Policy
	planner  *strategy.Planner
	alerts   Alerts
	logger   *utils.Logger
	cfg      Config
	now      func() time.Time

	mu          sync.Mutex
	nextRun     map[int64]time.Time
	// остановлены проверкой, но OFF еще не записан в БД
	stopping    map[int64]*policy.Violation
	// последняя ошибка, о которой уже ушло оповещение
	lastFailure map[int64]string

	inFlight atomic.Bool
	running  atomic.Bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New создает планировщик
func New(
	bots domain.BotConfigRepository,
	registry *exchange.Registry,
	engine *execution.Engine,
	auditLog *audit.Log,
	pol *policy.Policy,
	planner *strategy.Planner,
	alerts Alerts,
	cfg Config,
	logger *utils.Logger,
) *Scheduler {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if pol == nil {
		pol = policy.Default()
	}
	if planner == nil {
		planner = strategy.NewPlanner(nil)
	}
	if alerts == nil {
		alerts = nopAlerts{}
	}
	if logger == nil {
		logger = utils.Discard()
	}
	return &Scheduler{
		bots:        bots,
		registry:    registry,
		engine:      engine,
		audit:       auditLog,
		policy:      pol,
		planner:     planner,
		alerts:      alerts,
		logger:      logger.With("component", "scheduler"),
		cfg:         cfg,
		now:         time.Now,
		nextRun:     make(map[int64]time.Time),
		stopping:    make(map[int64]*policy.Violation),
		lastFailure: make(map[int64]string),
		stopChan:    make(chan struct{}),
	}
}

// Start запускает цикл планировщика
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already running")
	}

	s.logger.Info("Scheduler started (tick: %s, optimistic cancel: %v)", s.cfg.Tick, s.cfg.OptimisticCancel)

	s.wg.Add(1)
	go s.run(ctx)

	return nil
}

// Stop останавливает цикл и ждет завершения текущего обхода
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	s.logger.Info("Stopping scheduler...")
	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.Tick(ctx)
			}()

		case <-s.stopChan:
			return

		case <-ctx.Done():
			return
		}
	}
}

// Tick выполняет обход, если предыдущий уже закончился. false означает пропущенный тик
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		metrics.TicksSkippedTotal.Inc()
		s.logger.Debug("Previous sweep still running, tick skipped")
		return false
	}
	defer s.inFlight.Store(false)

	s.sweep(ctx)
	return true
}

func (s *Scheduler) sweep(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	if s.engine.KillSwitch().IsActive() {
		s.logger.Debug("Kill switch active, sweep skipped")
		return
	}

	bots, err := s.bots.GetActive(ctx)
	if err != nil {
		s.logger.Error("Failed to load active bots: %v", err)
		return
	}

	active := make(map[int64]bool, len(bots))
	for i := range bots {
		if ctx.Err() != nil {
			return
		}
		bot := &bots[i]
		active[bot.ID] = true
		if !bot.Creds.Complete() {
			continue
		}
		s.processBot(ctx, bot)
	}

	s.prune(active)
}

// processBot один шаг одного бота; паника и ошибки не выходят за его пределы
func (s *Scheduler) processBot(ctx context.Context, bot *domain.BotConfig) {
	pair := bot.Pair()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic in bot %d (%s): %v", bot.ID, pair, r)
			s.audit.Error(ctx, pair, "Bot execution failed: %v", r)
			metrics.BotExecutionsTotal.WithLabelValues(bot.Symbol, "error").Inc()
			s.reschedule(bot)
		}
	}()

	if s.stopPending(ctx, bot) {
		return
	}

	next, scheduled := s.NextRun(bot.ID)
	if scheduled && s.now().Before(next) {
		return
	}

	ex, err := s.registry.Get(bot.Exchange)
	if err != nil {
		s.audit.Error(ctx, pair, "Bot execution failed: %v", err)
		s.reschedule(bot)
		return
	}

	balances, err := ex.GetBalances(ctx, bot.Creds)
	if err != nil {
		s.audit.Error(ctx, pair, "Failed to fetch balances: %s", domain.ExchangeMessage(err))
		metrics.BotExecutionsTotal.WithLabelValues(bot.Symbol, "error").Inc()
		s.reschedule(bot)
		return
	}

	if scheduled {
		if v := s.policy.CheckDrift(bot, balances); v != nil {
			s.stopBot(ctx, bot, v)
			return
		}
	}

	if stopped := s.executeBot(ctx, ex, bot, balances); stopped {
		return
	}
	s.reschedule(bot)
}

// stopBot выключает бота после срабатывания проверки безопасности
func (s *Scheduler) stopBot(ctx context.Context, bot *domain.BotConfig, v *policy.Violation) {
	pair := bot.Pair()

	s.audit.Warning(ctx, pair, "%s", v.Message)
	metrics.BotsStoppedTotal.WithLabelValues(bot.Symbol, v.Type).Inc()
	metrics.BotExecutionsTotal.WithLabelValues(bot.Symbol, "stopped").Inc()
	s.alerts.BotStopped(pair, v.Message)

	if err := s.bots.UpdateStatus(ctx, bot.ID, domain.BotStatusOff); err != nil {
		s.logger.Error("Failed to switch bot %d off, bot stays blocked: %v", bot.ID, err)
		s.mu.Lock()
		s.stopping[bot.ID] = v
		s.mu.Unlock()
		return
	}
	s.Forget(bot.ID)
}

// stopPending повторяет выключение бота, который уже остановлен проверкой.
// Пока запись в БД не прошла, бот не торгует
func (s *Scheduler) stopPending(ctx context.Context, bot *domain.BotConfig) bool {
	s.mu.Lock()
	v, pending := s.stopping[bot.ID]
	s.mu.Unlock()
	if !pending {
		return false
	}

	if err := s.bots.UpdateStatus(ctx, bot.ID, domain.BotStatusOff); err != nil {
		s.logger.Error("Bot %d still blocked after %s, switch off failed: %v", bot.ID, v.Type, err)
		return true
	}

	s.logger.Info("Bot %d switched off after %s", bot.ID, v.Type)
	s.Forget(bot.ID)
	return true
}

// Stopping сообщает, что бот остановлен, но выключение еще не записано
func (s *Scheduler) Stopping(botID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.stopping[botID]
	return ok
}

func (s *Scheduler) reschedule(bot *domain.BotConfig) {
	delay := s.planner.NextDelay(bot)

	s.mu.Lock()
	s.nextRun[bot.ID] = s.now().Add(delay)
	s.mu.Unlock()

	s.logger.Debug("Bot %d next run in %s", bot.ID, delay)
}

func (s *Scheduler) prune(active map[int64]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.nextRun {
		if !active[id] {
			delete(s.nextRun, id)
		}
	}
	for id := range s.stopping {
		if !active[id] {
			delete(s.stopping, id)
		}
	}
	for id := range s.lastFailure {
		if !active[id] {
			delete(s.lastFailure, id)
		}
	}
}

// NextRun время следующего запуска бота
func (s *Scheduler) NextRun(botID int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.nextRun[botID]
	return t, ok
}

// Forget сбрасывает состояние бота; следующий обход запустит его как новый
func (s *Scheduler) Forget(botID int64) {
	s.mu.Lock()
	delete(s.nextRun, botID)
	delete(s.stopping, botID)
	delete(s.lastFailure, botID)
	s.mu.Unlock()
}
