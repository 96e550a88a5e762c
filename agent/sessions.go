package agent

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Factory builds the executor for a new scope.
type Factory func(scopeID string) *Executor

// Sessions caches one executor per scope. It is owned by the caller; there is
// no package-level registry.
type Sessions struct {
	mu        sync.Mutex
	factory   Factory
	executors map[string]*session
	logger    *zap.Logger
}

// session marks executors handed out since the last sweep so a caller holding
// one between Get and Start never loses it to eviction.
type session struct {
	exec    *Executor
	fetched bool
}

// NewSessions creates an empty session registry.
func NewSessions(factory Factory, logger *zap.Logger) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{
		factory:   factory,
		executors: make(map[string]*session),
		logger:    logger.With(zap.String("component", "agent_sessions")),
	}
}

// Get returns the executor for scopeID, creating it on first use.
func (s *Sessions) Get(scopeID string) *Executor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.executors[scopeID]; ok {
		sess.fetched = true
		return sess.exec
	}
	e := s.factory(scopeID)
	s.executors[scopeID] = &session{exec: e, fetched: true}
	s.logger.Debug("session created", zap.String("scope", scopeID))
	return e
}

// Delete drops the executor for scopeID.
func (s *Sessions) Delete(scopeID string) {
	s.mu.Lock()
	delete(s.executors, scopeID)
	s.mu.Unlock()
}

// Len returns the number of cached executors.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.executors)
}

// Sweep evicts idle executors that are not running and returns how many were
// removed. An executor returned by Get since the previous sweep survives one
// more round.
func (s *Sessions) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.executors {
		if sess.fetched {
			sess.fetched = false
			continue
		}
		if sess.exec.Busy() || sess.exec.LastUsed().After(cutoff) {
			continue
		}
		delete(s.executors, id)
		removed++
	}
	if removed > 0 {
		s.logger.Info("idle sessions evicted", zap.Int("count", removed))
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Sessions) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(maxIdle)
		}
	}
}
