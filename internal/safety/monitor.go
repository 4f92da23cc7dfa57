package safety

import (
	"strconv"
	"sync"

	"go.uber.org/zap"

	"backpack-mm/internal/alert"
	"backpack-mm/internal/config"
)

type Action string

const (
	ActionPrice  Action = "fetch price"
	ActionCancel Action = "cancel orders"
	ActionPlace  Action = "place order"
)

// Monitor tracks consecutive failures per action across cycles. It only reports:
// a streak never stops the next cycle from trying again.
type Monitor struct {
	alerts bool
	logger *zap.Logger

	mu      sync.Mutex
	streaks map[Action]*streak
	alerter alert.Alerter
}

type streak struct {
	threshold int
	failures  int
	reported  bool
}

func NewMonitor(cfg config.FailureAlertsConfig, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		alerts: cfg.Enabled,
		logger: logger.Named("safety"),
		streaks: map[Action]*streak{
			ActionPrice:  {threshold: cfg.MaxPriceFailures},
			ActionCancel: {threshold: cfg.MaxCancelFailures},
			ActionPlace:  {threshold: cfg.MaxPlaceFailures},
		},
	}
}

func (m *Monitor) SetAlerter(alerter alert.Alerter) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerter = alerter
}

// Failures returns the current consecutive failure count for action.
func (m *Monitor) Failures(action Action) int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.streaks[action]; ok {
		return s.failures
	}
	return 0
}

func (m *Monitor) Record(action Action, err error) {
	m.RecordCycle("", action, err)
}

// RecordCycle is Record with the id of the cycle that produced the outcome,
// which is attached to any alert it triggers.
func (m *Monitor) RecordCycle(cycleID string, action Action, err error) {
	if m == nil {
		return
	}
	m.mu.Lock()
	s, ok := m.streaks[action]
	if !ok {
		s = &streak{}
		m.streaks[action] = s
	}
	alerter := m.alerter
	if !m.alerts {
		alerter = nil
	}

	if err == nil {
		prev, reported := s.failures, s.reported
		s.failures = 0
		s.reported = false
		m.mu.Unlock()
		if reported {
			m.logger.Info("failure_streak_recovered",
				zap.String("action", string(action)),
				zap.Int("previous_consecutive_failures", prev),
			)
			if alerter != nil {
				alerter.Important("failure_streak_recovered", withCycle(cycleID, map[string]string{
					"action":                        string(action),
					"previous_consecutive_failures": strconv.Itoa(prev),
				}))
			}
		}
		return
	}

	s.failures++
	failures, threshold := s.failures, s.threshold
	tripped := threshold > 0 && failures >= threshold && !s.reported
	if tripped {
		s.reported = true
	}
	m.mu.Unlock()

	switch {
	case tripped:
		m.logger.Error("failure_streak",
			zap.String("action", string(action)),
			zap.Int("consecutive_failures", failures),
			zap.Int("threshold", threshold),
			zap.Error(err),
		)
		if alerter != nil {
			alerter.Important("failure_streak", withCycle(cycleID, map[string]string{
				"action":               string(action),
				"consecutive_failures": strconv.Itoa(failures),
				"threshold":            strconv.Itoa(threshold),
				"last_error":           err.Error(),
			}))
		}
	case threshold > 1 && failures == threshold-1:
		m.logger.Warn("failure_streak_near",
			zap.String("action", string(action)),
			zap.Int("consecutive_failures", failures),
			zap.Int("threshold", threshold),
			zap.Error(err),
		)
	}
}

func withCycle(cycleID string, fields map[string]string) map[string]string {
	if cycleID != "" {
		fields["cycle_id"] = cycleID
	}
	return fields
}
