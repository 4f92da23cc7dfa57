package alert

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

type Alerter interface {
	Important(event string, fields map[string]string)
}

const (
	defaultQueueSize          = 64
	defaultDropReportInterval = time.Minute
	defaultSendTimeout        = 20 * time.Second
)

type ManagerOptions struct {
	QueueSize          int
	DropReportInterval time.Duration
	Logger             *zap.Logger
}

// Manager delivers alerts on a background goroutine so a slow notifier never
// delays a market-making cycle. Events beyond the queue capacity are dropped.
type Manager struct {
	exchange string
	symbol   string
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time

	queue              chan event
	stop               chan struct{}
	done               chan struct{}
	dropReportInterval time.Duration
	droppedTotal       atomic.Uint64
	droppedWindow      atomic.Uint64

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

type event struct {
	name   string
	at     time.Time
	fields map[string]string
}

func NewManager(exchange, symbol string, notifier Notifier, logger *zap.Logger) *Manager {
	return NewManagerWithOptions(exchange, symbol, notifier, ManagerOptions{Logger: logger})
}

// NewManagerWithOptions returns nil when notifier is nil; a nil *Manager is a valid no-op Alerter.
func NewManagerWithOptions(exchange, symbol string, notifier Notifier, opts ManagerOptions) *Manager {
	if notifier == nil {
		return nil
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	interval := opts.DropReportInterval
	if interval == 0 {
		interval = defaultDropReportInterval
	}
	if interval < 0 {
		interval = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		exchange:           exchange,
		symbol:             symbol,
		notifier:           notifier,
		logger:             logger.Named("alert"),
		now:                time.Now,
		queue:              make(chan event, size),
		stop:               make(chan struct{}),
		done:               make(chan struct{}),
		dropReportInterval: interval,
	}
	m.wg.Add(1)
	go m.loop()
	if interval > 0 {
		m.wg.Add(1)
		go m.dropReportLoop()
	}
	go func() {
		m.wg.Wait()
		close(m.done)
	}()
	return m
}

func (m *Manager) Important(name string, fields map[string]string) {
	if m == nil {
		return
	}
	ev := event{name: name, at: m.now().UTC(), fields: cloneFields(fields)}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- ev:
	default:
		total := m.droppedTotal.Add(1)
		// First drop in a window is logged right away, the rest go into the periodic summary.
		if m.droppedWindow.Add(1) == 1 {
			m.logger.Warn("alert_queue_dropped",
				zap.String("target_event", name),
				zap.Uint64("dropped_total", total),
				zap.Int("queue_cap", cap(m.queue)),
			)
		}
	}
}

// Close stops accepting events and waits until queued ones are sent or ctx expires.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	m.mu.Unlock()

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) loop() {
	defer m.wg.Done()
	for {
		select {
		case ev := <-m.queue:
			m.send(ev)
		case <-m.stop:
			for {
				select {
				case ev := <-m.queue:
					m.send(ev)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) dropReportLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.dropReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.reportDropped()
		case <-m.stop:
			m.reportDropped()
			return
		}
	}
}

func (m *Manager) reportDropped() {
	dropped := m.droppedWindow.Swap(0)
	if dropped == 0 {
		return
	}
	m.logger.Warn("alert_queue_dropped_report",
		zap.Uint64("dropped_since_last", dropped),
		zap.Uint64("dropped_total", m.droppedTotal.Load()),
		zap.Duration("interval", m.dropReportInterval),
	)
}

func (m *Manager) send(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
	defer cancel()
	if err := m.notifier.Notify(ctx, m.message(ev)); err != nil {
		m.logger.Error("alert_notify_failed", zap.String("target_event", ev.name), zap.Error(err))
	}
}

func (m *Manager) message(ev event) Message {
	keys := make([]string, 0, len(ev.fields))
	for k := range ev.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, Field{Key: k, Value: ev.fields[k]})
	}
	return Message{
		Event:    ev.name,
		At:       ev.at,
		Exchange: m.exchange,
		Symbol:   m.symbol,
		Fields:   fields,
	}
}

func cloneFields(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
