package instrument

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"backpack-mm/internal/core"
	"backpack-mm/internal/exchange"
)

const defaultRefreshTimeout = 30 * time.Second

// Registry serves precision rules from the last successfully loaded markets list.
// Readers get a consistent snapshot; a failed refresh leaves the old one in place.
type Registry struct {
	source exchange.MarketSource
	logger *zap.Logger
	now    func() time.Time

	mu          sync.RWMutex
	rules       map[string]core.Rules
	refreshedAt time.Time

	cronMu sync.Mutex
	cron   *cron.Cron
}

func NewRegistry(source exchange.MarketSource, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		source: source,
		logger: logger.Named("instrument"),
		now:    time.Now,
	}
}

func (r *Registry) Refresh(ctx context.Context) error {
	markets, err := r.source.Markets(ctx)
	if err != nil {
		return fmt.Errorf("load markets: %w", err)
	}
	if len(markets) == 0 {
		return errors.New("load markets: exchange returned no markets")
	}
	next := make(map[string]core.Rules, len(markets))
	for _, m := range markets {
		next[m.Symbol] = m
	}
	r.mu.Lock()
	r.rules = next
	r.refreshedAt = r.now().UTC()
	r.mu.Unlock()
	r.logger.Debug("instrument_rules_refreshed", zap.Int("markets", len(next)))
	return nil
}

func (r *Registry) Rules(symbol string) (core.Rules, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rules, ok := r.rules[symbol]
	if !ok {
		return core.Rules{}, fmt.Errorf("%w: %s", core.ErrSymbolNotFound, symbol)
	}
	return rules, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

func (r *Registry) RefreshedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refreshedAt
}

// Tradable returns the rules for symbol after checking that its tick and step
// can be rounded to. Any failure here is a configuration problem.
func (r *Registry) Tradable(symbol string) (core.Rules, error) {
	rules, err := r.Rules(symbol)
	if err != nil {
		return core.Rules{}, fmt.Errorf("%w: %w", core.ErrConfig, err)
	}
	if _, err := core.PrecisionPlaces(rules.PriceTick); err != nil {
		return core.Rules{}, fmt.Errorf("%w: %s tick size: %w", core.ErrConfig, symbol, err)
	}
	if _, err := core.PrecisionPlaces(rules.QtyStep); err != nil {
		return core.Rules{}, fmt.Errorf("%w: %s step size: %w", core.ErrConfig, symbol, err)
	}
	return rules, nil
}

// Schedule refreshes the registry on spec (standard cron or @every) until Stop.
func (r *Registry) Schedule(spec string) error {
	r.cronMu.Lock()
	defer r.cronMu.Unlock()
	if r.cron != nil {
		return errors.New("refresh already scheduled")
	}
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(spec, r.scheduledRefresh); err != nil {
		return fmt.Errorf("schedule rules refresh %q: %w", spec, err)
	}
	c.Start()
	r.cron = c
	r.logger.Info("instrument_refresh_scheduled", zap.String("spec", spec))
	return nil
}

func (r *Registry) scheduledRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRefreshTimeout)
	defer cancel()
	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn("instrument_refresh_failed", zap.Error(err), zap.Time("snapshot_at", r.RefreshedAt()))
	}
}

// Stop cancels the schedule and waits for a running refresh to finish.
func (r *Registry) Stop() {
	r.cronMu.Lock()
	c := r.cron
	r.cron = nil
	r.cronMu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}
