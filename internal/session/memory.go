package session

import (
	"context"
	"sync"
)

// Memory is a process-local Store. Each session owns a mutex, so turns on the
// same session serialize while different sessions proceed independently.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
}

type memorySession struct {
	mu   sync.Mutex
	msgs []Message
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*memorySession)}
}

func (m *Memory) session(sessionID string, create bool) *memorySession {
	m.mu.RLock()
	s := m.sessions[sessionID]
	m.mu.RUnlock()
	if s != nil || !create {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s = m.sessions[sessionID]; s == nil {
		s = &memorySession{}
		m.sessions[sessionID] = s
	}
	return s
}

func (m *Memory) History(_ context.Context, sessionID string) ([]Message, error) {
	s := m.session(sessionID, false)
	if s == nil {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out, nil
}

func (m *Memory) Append(_ context.Context, sessionID string, msgs ...Message) error {
	s := m.session(sessionID, true)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msgs...)
	return nil
}

func (m *Memory) Replace(_ context.Context, sessionID string, msgs []Message) error {
	s := m.session(sessionID, true)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = make([]Message, len(msgs))
	copy(s.msgs, msgs)
	return nil
}

func (m *Memory) Evict(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}
