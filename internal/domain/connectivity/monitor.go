// Package connectivity observes network reachability and reports changes.
package connectivity

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/eggprofit/internal/providers/http/client"
)

// ErrUnavailable reports that the device is offline
var ErrUnavailable = errors.New("connectivity unavailable")

// Prober checks reachability once
type Prober interface {
	Probe(ctx context.Context) bool
}

// ProberFunc adapts a function to Prober
type ProberFunc func(ctx context.Context) bool

// Probe calls f
func (f ProberFunc) Probe(ctx context.Context) bool {
	return f(ctx)
}

// HTTPProber issues a HEAD request; any response counts as online
type HTTPProber struct {
	Client *client.Client
	URL    string
}

// Probe reports whether URL answered
func (p *HTTPProber) Probe(ctx context.Context) bool {
	resp, err := p.Client.Head(ctx, p.URL, func(r *resty.Request) {
		r.SetHeader("Cache-Control", "no-cache")
	})
	return err == nil && resp.StatusCode() > 0 && resp.StatusCode() < http.StatusInternalServerError
}

// Monitor tracks the online signal. Values come from the probe loop started
// by Start or are pushed directly through Set by a platform callback.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	logger   *logging.Logger

	mu       sync.RWMutex
	online   bool
	observed bool
	subs     map[int]chan bool
	nextSub  int

	startOnce sync.Once
	done      chan struct{}
}

// Config configures a Monitor
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// NewMonitor creates a monitor. A nil prober disables the probe loop.
func NewMonitor(prober Prober, cfg Config, logger *logging.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &Monitor{
		prober:   prober,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		logger:   logging.OrNop(logger).Named("connectivity"),
		subs:     make(map[int]chan bool),
		done:     make(chan struct{}),
	}
}

// Start probes once synchronously, then keeps probing on its own goroutine
// until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		if m.prober == nil {
			close(m.done)
			return
		}
		m.probe(ctx)
		go m.loop(ctx)
	})
}

// Done is closed when the probe loop exits
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	online := m.prober.Probe(probeCtx)
	if ctx.Err() != nil {
		return
	}
	m.Set(online)
}

// Online returns the last observed value. Before any observation the
// device is assumed online.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.observed || m.online
}

// Check returns ErrUnavailable when offline
func (m *Monitor) Check() error {
	if !m.Online() {
		return ErrUnavailable
	}
	return nil
}

// Set records an observation and notifies subscribers when it changed.
// The first observation is always delivered.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	changed := !m.observed || m.online != online
	m.online = online
	m.observed = true
	if changed {
		for _, ch := range m.subs {
			deliver(ch, online)
		}
	}
	m.mu.Unlock()

	if changed {
		m.logger.Info("Connectivity changed", zap.Bool("online", online))
	}
}

// Subscribe returns a channel of changes and a function that ends the
// subscription. Slow subscribers only see the latest value.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// deliver replaces a pending value rather than blocking the sender
func deliver(ch chan bool, v bool) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
