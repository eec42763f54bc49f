package api

import (
	"fmt"
	"sync"

	"github.com/chartgpt/chartgpt/internal/chartgpt"
)

// SessionFactory builds the orchestrator for a tenant on first use.
type SessionFactory func(tenantID string) (*chartgpt.ChartGPT, error)

// Sessions keeps one orchestrator per tenant. Each tenant has its own dataset
// and last run.
type Sessions struct {
	factory SessionFactory

	mu       sync.Mutex
	sessions map[string]*chartgpt.ChartGPT
}

func NewSessions(factory SessionFactory) *Sessions {
	return &Sessions{factory: factory, sessions: map[string]*chartgpt.ChartGPT{}}
}

func (s *Sessions) Get(tenantID string) (*chartgpt.ChartGPT, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[tenantID]; ok {
		return session, nil
	}
	if s.factory == nil {
		return nil, fmt.Errorf("session factory is not configured")
	}
	session, err := s.factory(tenantID)
	if err != nil {
		return nil, fmt.Errorf("create session for tenant %q: %w", tenantID, err)
	}
	s.sessions[tenantID] = session
	return session, nil
}

func (s *Sessions) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
