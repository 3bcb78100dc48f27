package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const maxWalletLen = 128

type sessionEntry struct {
	s     *Session
	ready chan struct{}
	err   error
}

// Manager opens one Session per wallet on first use and closes them on
// idle or shutdown. Sessions share nothing but the collaborators in Deps.
type Manager struct {
	deps   Deps
	params Params
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	closed   bool
}

func NewManager(deps Deps, params Params) *Manager {
	deps = deps.withDefaults()
	return &Manager{
		deps:     deps,
		params:   params,
		logger:   deps.Logger,
		sessions: make(map[string]*sessionEntry),
	}
}

// Counter returns the shared action counter.
func (m *Manager) Counter() *ActionCounter { return m.deps.Counter }

// Session returns the wallet's live session, loading the player and running
// offline catch-up when none is open yet. Concurrent callers for the same
// wallet share one load.
func (m *Manager) Session(ctx context.Context, wallet string) (*Session, error) {
	if wallet == "" || len(wallet) > maxWalletLen {
		return nil, fmt.Errorf("wallet %q: %w", wallet, ErrValidation)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if e, ok := m.sessions[wallet]; ok {
		m.mu.Unlock()
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}
		return e.s, nil
	}
	e := &sessionEntry{ready: make(chan struct{})}
	m.sessions[wallet] = e
	m.mu.Unlock()

	s := newSession(wallet, m.deps, m.params)
	if err := s.load(ctx); err != nil {
		s.abort()
		m.mu.Lock()
		delete(m.sessions, wallet)
		m.mu.Unlock()
		e.err = err
		close(e.ready)
		m.logger.Warn("Session load failed", zap.String("wallet", wallet), zap.Error(err))
		return nil, err
	}
	s.start()
	e.s = s
	close(e.ready)
	m.logger.Info("Session opened", zap.String("wallet", wallet))
	return s, nil
}

// Close ends the wallet's session if one is open.
func (m *Manager) Close(ctx context.Context, wallet string) error {
	m.mu.Lock()
	e, ok := m.sessions[wallet]
	if ok {
		delete(m.sessions, wallet)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.closeEntry(ctx, wallet, e)
}

func (m *Manager) closeEntry(ctx context.Context, wallet string, e *sessionEntry) error {
	select {
	case <-e.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	if e.s == nil {
		return nil
	}
	if f, ok := m.deps.Publisher.(interface{ Forget(string) }); ok {
		f.Forget(wallet)
	}
	return e.s.Close(ctx)
}

// Active returns the number of open sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every session and refuses new ones. Each session gets a
// final persist.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	entries := m.sessions
	m.sessions = make(map[string]*sessionEntry)
	m.mu.Unlock()

	var wg sync.WaitGroup
	errs := make(chan error, len(entries))
	for wallet, e := range entries {
		wg.Add(1)
		go func(wallet string, e *sessionEntry) {
			defer wg.Done()
			if err := m.closeEntry(ctx, wallet, e); err != nil {
				errs <- fmt.Errorf("close session %s: %w", wallet, err)
			}
		}(wallet, e)
	}
	wg.Wait()
	close(errs)
	var first error
	for err := range errs {
		if first == nil {
			first = err
		}
		m.logger.Error("Session shutdown failed", zap.Error(err))
	}
	m.logger.Info("All sessions closed", zap.Int("sessions", len(entries)))
	return first
}

// ReapIdle closes sessions unused for longer than the idle timeout.
func (m *Manager) ReapIdle(ctx context.Context) int {
	if m.params.IdleTimeout <= 0 {
		return 0
	}
	now := m.deps.Now()
	var idle []string
	m.mu.Lock()
	for wallet, e := range m.sessions {
		select {
		case <-e.ready:
		default:
			continue
		}
		if e.s != nil && e.s.idleFor(now) > m.params.IdleTimeout {
			idle = append(idle, wallet)
		}
	}
	m.mu.Unlock()
	for _, wallet := range idle {
		if err := m.Close(ctx, wallet); err != nil {
			m.logger.Warn("Idle session close failed", zap.String("wallet", wallet), zap.Error(err))
		}
	}
	return len(idle)
}

// Run reaps idle sessions and logs activity every interval until ctx ends.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.ReapIdle(ctx); n > 0 {
				m.logger.Info("Closed idle sessions", zap.Int("count", n))
			}
			m.logger.Info("Session status", zap.Int("active", m.Active()))
			m.deps.Counter.LogCounts(m.logger)
		}
	}
}
