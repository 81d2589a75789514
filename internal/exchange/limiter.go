package exchange

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter общий на процесс ограничитель запросов к биржам:
// не больше одного запроса одновременно и не чаще одного старта в minSpacing
type Limiter struct {
	slot  chan struct{}
	pacer *rate.Limiter
}

// NewLimiter создает ограничитель с минимальным интервалом между запросами
func NewLimiter(minSpacing time.Duration) *Limiter {
	limit := rate.Inf
	if minSpacing > 0 {
		limit = rate.Every(minSpacing)
	}
	return &Limiter{
		slot:  make(chan struct{}, 1),
		pacer: rate.NewLimiter(limit, 1),
	}
}

// Do дожидается очереди и выполняет fn
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.slot }()

	if err := l.pacer.Wait(ctx); err != nil {
		return err
	}
	return fn()
}
