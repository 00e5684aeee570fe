// Package retention bounds the memory of a long-lived session. It sweeps the canvas
// and its auxiliary stores by age and by count, on a timer and on demand.
package retention

import (
	"context"
	"sync"
	"time"

	"promptcanvas/backend/pkg/logger"
	"promptcanvas/backend/pkg/metrics"
	"go.uber.org/zap"
)

// Target is any store the manager can evict from
type Target interface {
	Name() string
	PruneOlderThan(maxAge time.Duration) int
	LimitCount(max int) int
	Len() int
}

// Policy is the per-target bound. A zero field disables that strategy.
// Bookkeeping targets set Unweighted so their count cap stays out of the pressure
// ratio.
type Policy struct {
	MaxAge     time.Duration
	MaxCount   int
	Unweighted bool
}

// Config controls sweep timing and the memory pressure band
type Config struct {
	Interval           time.Duration
	AggressiveInterval time.Duration
	// EnterAggressive and ExitAggressive are fractions of the combined count caps
	EnterAggressive float64
	ExitAggressive  float64
}

// DefaultConfig sweeps every 5 minutes, every minute under pressure
func DefaultConfig() Config {
	return Config{
		Interval:           5 * time.Minute,
		AggressiveInterval: time.Minute,
		EnterAggressive:    0.8,
		ExitAggressive:     0.5,
	}
}

type registration struct {
	target Target
	policy Policy
}

// Result is what one sweep removed from one target
type Result struct {
	Target  string `json:"target"`
	ByAge   int    `json:"byAge"`
	ByCount int    `json:"byCount"`
	Remains int    `json:"remains"`
}

// Report summarises a sweep
type Report struct {
	Results    []Result `json:"results"`
	Removed    int      `json:"removed"`
	Pressure   float64  `json:"pressure"`
	Aggressive bool     `json:"aggressive"`
}

// Manager runs sweeps over its registered targets
type Manager struct {
	mu         sync.Mutex
	cfg        Config
	targets    []registration
	aggressive bool

	logger   *zap.Logger
	running  bool
	stopChan chan struct{}
	done     chan struct{}
	retick   chan struct{}
}

// NewManager creates a manager with no targets
func NewManager(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.AggressiveInterval <= 0 {
		cfg.AggressiveInterval = def.AggressiveInterval
	}
	if cfg.EnterAggressive <= 0 {
		cfg.EnterAggressive = def.EnterAggressive
	}
	if cfg.ExitAggressive <= 0 {
		cfg.ExitAggressive = def.ExitAggressive
	}
	return &Manager{
		cfg:    cfg,
		logger: logger.Named("retention"),
		retick: make(chan struct{}, 1),
	}
}

// Register adds a target. Targets are swept in registration order.
func (m *Manager) Register(t Target, p Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets = append(m.targets, registration{target: t, policy: p})
}

// Sweep applies the age strategy then the count strategy to every target, then
// re-evaluates memory pressure from what was held before the sweep.
func (m *Manager) Sweep() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := Report{Pressure: m.pressureLocked()}
	for _, r := range m.targets {
		res := Result{Target: r.target.Name()}
		if r.policy.MaxAge > 0 {
			res.ByAge = r.target.PruneOlderThan(r.policy.MaxAge)
			metrics.EvictionsTotal.WithLabelValues(res.Target, "age").Add(float64(res.ByAge))
		}
		if r.policy.MaxCount > 0 {
			res.ByCount = r.target.LimitCount(r.policy.MaxCount)
			metrics.EvictionsTotal.WithLabelValues(res.Target, "count").Add(float64(res.ByCount))
		}
		res.Remains = r.target.Len()
		report.Removed += res.ByAge + res.ByCount
		report.Results = append(report.Results, res)
	}

	changed := m.updateModeLocked(report.Pressure)
	report.Aggressive = m.aggressive

	if report.Removed > 0 || changed {
		m.logger.Info("Retention sweep",
			zap.Int("removed", report.Removed),
			zap.Float64("pressure", report.Pressure),
			zap.Bool("aggressive", report.Aggressive),
		)
	}
	if changed {
		select {
		case m.retick <- struct{}{}:
		default:
		}
	}
	return report
}

// pressureLocked is the held entity count over the combined caps of capped,
// weighted targets
func (m *Manager) pressureLocked() float64 {
	held, caps := 0, 0
	for _, r := range m.targets {
		if r.policy.MaxCount <= 0 || r.policy.Unweighted {
			continue
		}
		held += r.target.Len()
		caps += r.policy.MaxCount
	}
	if caps == 0 {
		return 0
	}
	return float64(held) / float64(caps)
}

// updateModeLocked applies the hysteresis band and reports whether the mode flipped
func (m *Manager) updateModeLocked(pressure float64) bool {
	switch {
	case !m.aggressive && pressure > m.cfg.EnterAggressive:
		m.aggressive = true
	case m.aggressive && pressure < m.cfg.ExitAggressive:
		m.aggressive = false
	default:
		return false
	}

	if m.aggressive {
		metrics.AggressiveMode.Set(1)
	} else {
		metrics.AggressiveMode.Set(0)
	}
	return true
}

// Aggressive reports whether the shortened interval is in effect
func (m *Manager) Aggressive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aggressive
}

// Interval returns the current sweep interval
func (m *Manager) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.intervalLocked()
}

func (m *Manager) intervalLocked() time.Duration {
	if m.aggressive {
		return m.cfg.AggressiveInterval
	}
	return m.cfg.Interval
}

// ForceCleanup sweeps immediately. A pressure change takes effect on the running
// loop's next tick.
func (m *Manager) ForceCleanup() Report {
	m.logger.Debug("Forced cleanup requested")
	return m.Sweep()
}

// Start sweeps once and then keeps sweeping on the current interval until ctx is
// done or Stop is called. Calling Start on a running manager does nothing.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Warn("Retention manager already running")
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})
	stop, done := m.stopChan, m.done
	m.mu.Unlock()

	m.Sweep()
	go m.runLoop(ctx, stop, done)

	m.logger.Info("Retention manager started", zap.Duration("interval", m.Interval()))
}

// Stop runs a final sweep and stops the loop
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	done := m.done
	m.mu.Unlock()

	<-done
	report := m.Sweep()
	m.logger.Info("Retention manager stopped", zap.Int("final_removed", report.Removed))
}

// Run starts the manager and blocks until ctx is done, then stops it
func (m *Manager) Run(ctx context.Context) error {
	m.Start(ctx)
	<-ctx.Done()
	m.Stop()
	return nil
}

func (m *Manager) runLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-m.retick:
			ticker.Reset(m.Interval())
		case <-ticker.C:
			m.Sweep()
		}
	}
}
