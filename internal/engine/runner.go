package engine

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"backpack-mm/internal/alert"
	"backpack-mm/internal/core"
)

const (
	defaultInterval        = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Runner drives Cycle: one run immediately, then one run per Interval measured
// from the end of the previous run, so cycles never overlap.
type Runner struct {
	Cycle            *Cycle
	Interval         time.Duration
	CancelOnShutdown bool
	ShutdownTimeout  time.Duration
	Alerts           alert.Alerter
	Logger           *zap.Logger

	// OnResult, when set, sees every finished cycle.
	OnResult func(core.CycleResult)
}

// Run returns nil once ctx is cancelled. Cycle failures never stop it.
func (r *Runner) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	log := r.logger()
	log.Info("runner_started", zap.String("symbol", r.Cycle.Symbol), zap.Duration("interval", interval))
	r.alert("runner_started", map[string]string{"interval": interval.String()})

	timer := time.NewTimer(0)
	defer timer.Stop()
	cycles := 0
	for {
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		if ctx.Err() != nil {
			r.shutdown(cycles)
			return nil
		}
		res := r.Cycle.Run(ctx)
		cycles++
		if r.OnResult != nil {
			r.OnResult(res)
		}
		timer.Reset(interval)
	}
}

func (r *Runner) shutdown(cycles int) {
	log := r.logger()
	if r.CancelOnShutdown {
		timeout := r.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		n, err := r.Cycle.Exchange.CancelAllOrders(ctx, r.Cycle.Symbol)
		cancel()
		if err != nil {
			log.Error("shutdown_cancel_failed", zap.String("symbol", r.Cycle.Symbol), zap.Error(err))
		} else {
			log.Info("shutdown_cancelled", zap.String("symbol", r.Cycle.Symbol), zap.Int("cancelled", n))
		}
	}
	log.Info("runner_stopped", zap.String("symbol", r.Cycle.Symbol), zap.Int("cycles", cycles))
	r.alert("runner_stopped", map[string]string{"cycles": strconv.Itoa(cycles)})
}

func (r *Runner) alert(event string, fields map[string]string) {
	if r.Alerts == nil {
		return
	}
	r.Alerts.Important(event, fields)
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
