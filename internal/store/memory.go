package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/m3rciful/quizbot/internal/quiz"
)

// Memory keeps sessions in process. It backs tests and single-instance
// deployments that accept losing state on restart.
type Memory struct {
	mu       sync.RWMutex
	sessions map[memoryKey]quiz.Session
}

type memoryKey struct {
	phone string
	botID string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[memoryKey]quiz.Session)}
}

// Get returns a copy of the stored session.
func (m *Memory) Get(_ context.Context, phone, botID string) (*quiz.Session, error) {
	if err := validKey(phone, botID); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[memoryKey{phone, botID}]
	if !ok {
		return nil, ErrNotFound
	}
	s = s.Clone()
	return &s, nil
}

// Put upserts s, keeping the challenges already stored.
func (m *Memory) Put(_ context.Context, s quiz.Session) error {
	if err := validKey(s.Phone, s.BotID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(s)
	return nil
}

// Complete upserts s and appends c under one lock.
func (m *Memory) Complete(_ context.Context, s quiz.Session, c quiz.Challenge) error {
	if err := validKey(s.Phone, s.BotID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.put(s)
	stored := m.sessions[key]
	stored.Challenges = append(append([]quiz.Challenge(nil), stored.Challenges...), c)
	m.sessions[key] = stored
	return nil
}

func (m *Memory) put(s quiz.Session) memoryKey {
	key := memoryKey{s.Phone, s.BotID}
	prev, ok := m.sessions[key]
	s = s.Clone()
	s.Challenges = nil
	if ok {
		s.Challenges = prev.Challenges
		if s.CreatedAt.IsZero() {
			s.CreatedAt = prev.CreatedAt
		}
	}
	m.sessions[key] = s
	return key
}

// AppendChallenge adds c to the user's challenge list.
func (m *Memory) AppendChallenge(_ context.Context, phone, botID string, c quiz.Challenge) error {
	if err := validKey(phone, botID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoryKey{phone, botID}
	s, ok := m.sessions[key]
	if !ok {
		return fmt.Errorf("append challenge: %w", ErrNotFound)
	}
	s.Challenges = append(append([]quiz.Challenge(nil), s.Challenges...), c)
	m.sessions[key] = s
	return nil
}

// QueryByBot returns every session of botID ordered by phone.
func (m *Memory) QueryByBot(_ context.Context, botID string) ([]quiz.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []quiz.Session
	for key, s := range m.sessions {
		if key.botID == botID {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phone < out[j].Phone })
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close(context.Context) error { return nil }
