// Package connectivity reports whether the remote service is reachable.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Oracle is the source of the online/offline signal.
type Oracle interface {
	IsOnline() bool
	// OnConnectivityChange registers fn to be called on every transition.
	// The returned func unregisters it.
	OnConnectivityChange(fn func(online bool)) func()
}

// emitter fans transitions out to listeners. Listener panics are recovered.
type emitter struct {
	mu        sync.RWMutex
	listeners map[int]func(bool)
	nextID    int
}

func (e *emitter) on(fn func(bool)) func() {
	e.mu.Lock()
	if e.listeners == nil {
		e.listeners = make(map[int]func(bool))
	}
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

func (e *emitter) emit(online bool) {
	e.mu.RLock()
	fns := make([]func(bool), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.RUnlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Warn("connectivity: listener panicked", "panic", r)
				}
			}()
			fn(online)
		}()
	}
}

// Manual is an oracle toggled explicitly.
type Manual struct {
	emitter
	mu     sync.Mutex
	online bool
}

// NewManual returns a manual oracle in the given state.
func NewManual(online bool) *Manual {
	return &Manual{online: online}
}

// IsOnline implements Oracle.
func (m *Manual) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnConnectivityChange implements Oracle.
func (m *Manual) OnConnectivityChange(fn func(bool)) func() {
	return m.on(fn)
}

// SetOnline changes the state and notifies listeners if it changed.
func (m *Manual) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()
	if changed {
		m.emit(online)
	}
}

// Checker probes the remote, returning nil when it is reachable.
type Checker func(ctx context.Context) error

// DefaultProbeInterval is used when Probe is given a non-positive interval.
const DefaultProbeInterval = 10 * time.Second

// Probe polls a checker and reports transitions.
type Probe struct {
	emitter
	check    Checker
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	online  bool
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewProbe returns a probe that starts offline until the first check.
func NewProbe(check Checker, interval time.Duration) *Probe {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Probe{check: check, interval: interval, timeout: interval / 2}
}

// IsOnline implements Oracle.
func (p *Probe) IsOnline() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// OnConnectivityChange implements Oracle.
func (p *Probe) OnConnectivityChange(fn func(bool)) func() {
	return p.on(fn)
}

// Check runs one probe synchronously and returns the resulting state.
func (p *Probe) Check(ctx context.Context) bool {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := p.check(cctx)
	online := err == nil
	if err != nil {
		slog.Debug("connectivity: probe failed", "err", err)
	}

	p.mu.Lock()
	changed := p.online != online
	p.online = online
	p.mu.Unlock()
	if changed {
		slog.Info("connectivity: changed", "online", online)
		p.emit(online)
	}
	return online
}

// Start checks once and then polls until Stop or ctx is done.
func (p *Probe) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.stopped = make(chan struct{})
	stopped := p.stopped
	p.mu.Unlock()

	p.Check(ctx)
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Check(ctx)
			}
		}
	}()
}

// Stop ends polling and waits for the poll loop to exit.
func (p *Probe) Stop() {
	p.mu.Lock()
	cancel, stopped := p.cancel, p.stopped
	p.cancel, p.stopped = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

var (
	_ Oracle = (*Manual)(nil)
	_ Oracle = (*Probe)(nil)
)
