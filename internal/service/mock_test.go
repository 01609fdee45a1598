package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/warfront-game/api/internal/model"
)

// mockSessionRepo is an in-memory SessionRepository.
type mockSessionRepo struct {
	mu        sync.Mutex
	sessions  map[string]*model.Session
	createErr error
	activated []string
	finished  map[string]string
	deleted   []string
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{
		sessions: make(map[string]*model.Session),
		finished: make(map[string]string),
	}
}

func (m *mockSessionRepo) Create(_ context.Context, code string, seed int64, players []model.SessionPlayer) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	if _, ok := m.sessions[code]; ok {
		return nil, errors.New("duplicate session code")
	}
	s := &model.Session{Code: code, Status: "waiting", Seed: seed, CreatedAt: time.Now(), Players: players}
	m.sessions[code] = s
	return s, nil
}

func (m *mockSessionRepo) FindByCode(_ context.Context, code string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[code], nil
}

func (m *mockSessionRepo) ListOpen(_ context.Context) ([]model.Session, error) {
	return m.listByStatus("waiting"), nil
}

func (m *mockSessionRepo) ListActive(_ context.Context) ([]model.Session, error) {
	return m.listByStatus("active"), nil
}

func (m *mockSessionRepo) listByStatus(status string) []model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Session
	for _, s := range m.sessions {
		if s.Status == status {
			out = append(out, *s)
		}
	}
	return out
}

func (m *mockSessionRepo) SetActive(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[code]; ok {
		s.Status = "active"
	}
	m.activated = append(m.activated, code)
	return nil
}

func (m *mockSessionRepo) SetFinished(_ context.Context, code, winner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[code]; ok {
		s.Status = "finished"
		s.Winner = winner
	}
	m.finished[code] = winner
	return nil
}

func (m *mockSessionRepo) Delete(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, code)
	m.deleted = append(m.deleted, code)
	return nil
}

// mockStateStore is an in-memory StateStore with injectable save failures.
// Save calls are appended to the shared journal so tests can assert ordering
// against broadcasts.
type mockStateStore struct {
	mu      sync.Mutex
	states  map[string]json.RawMessage
	timers  map[string]time.Time
	saveErr error
	journal *journal
}

func newMockStateStore(j *journal) *mockStateStore {
	return &mockStateStore{
		states:  make(map[string]json.RawMessage),
		timers:  make(map[string]time.Time),
		journal: j,
	}
}

func (m *mockStateStore) SaveState(_ context.Context, code string, state json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := make(json.RawMessage, len(state))
	copy(cp, state)
	m.states[code] = cp
	m.journal.add("save:" + code)
	return nil
}

func (m *mockStateStore) LoadState(_ context.Context, code string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.states[code]
	if !ok {
		return nil, nil
	}
	return data, nil
}

func (m *mockStateStore) DeleteState(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, code)
	delete(m.timers, code)
	return nil
}

func (m *mockStateStore) SetTurnTimer(_ context.Context, code string, deadline time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers[code] = deadline
	return nil
}

func (m *mockStateStore) ClearTurnTimer(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timers, code)
	return nil
}

// mockBroadcaster records every event in order.
type mockBroadcaster struct {
	mu      sync.Mutex
	session []recordedEvent
	direct  []recordedEvent
	journal *journal
}

type recordedEvent struct {
	connID    string
	code      string
	eventType string
	data      any
}

func newMockBroadcaster(j *journal) *mockBroadcaster {
	return &mockBroadcaster{journal: j}
}

func (m *mockBroadcaster) BroadcastSessionEvent(code, eventType string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = append(m.session, recordedEvent{code: code, eventType: eventType, data: data})
	m.journal.add("broadcast:" + eventType)
}

func (m *mockBroadcaster) SendConnectionEvent(connID, code, eventType string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.direct = append(m.direct, recordedEvent{connID: connID, code: code, eventType: eventType, data: data})
	m.journal.add("direct:" + eventType)
}

func (m *mockBroadcaster) sessionEvents(eventType string) []recordedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []recordedEvent
	for _, e := range m.session {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// journal is a shared ordered record of store writes and broadcasts.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}
