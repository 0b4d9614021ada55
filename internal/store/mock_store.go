// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
// It mirrors SQLiteStore semantics, including upsert-by-name for agents.
type MockStore struct {
	mu        sync.RWMutex
	sessions  map[string]*Session // keyed by user ID
	agents    map[string]*Agent   // keyed by agent ID
	nameIndex map[string]string   // keyed by "owner\x00name" -> agent ID

	// PingErr is returned by Ping when set.
	PingErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		sessions:  make(map[string]*Session),
		agents:    make(map[string]*Agent),
		nameIndex: make(map[string]string),
	}
}

func nameKey(owner, name string) string {
	return owner + "\x00" + name
}

// GetSession returns a copy of the stored session.
func (m *MockStore) GetSession(ctx context.Context, userID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	result := *sess
	return &result, nil
}

// SaveSession stores a copy of the session.
func (m *MockStore) SaveSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if prev, ok := m.sessions[session.UserID]; ok {
		session.CreatedAt = prev.CreatedAt
	}
	session.UpdatedAt = now

	s := *session
	m.sessions[s.UserID] = &s
	return nil
}

// PutAgent creates or replaces an agent by (owner, name).
func (m *MockStore) PutAgent(ctx context.Context, agent *Agent) (bool, error) {
	if agent.Name == "" {
		return false, ErrEmptyName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	key := nameKey(agent.Owner, agent.Name)

	if id, ok := m.nameIndex[key]; ok {
		existing := m.agents[id]
		existing.Instructions = agent.Instructions
		existing.Messages = nil
		existing.UpdatedAt = now

		agent.ID = existing.ID
		agent.CreatedAt = existing.CreatedAt
		agent.UpdatedAt = now
		agent.Messages = nil
		return true, nil
	}

	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	agent.CreatedAt = now
	agent.UpdatedAt = now
	agent.Messages = nil

	a := *agent
	m.agents[a.ID] = &a
	m.nameIndex[key] = a.ID
	return false, nil
}

// GetAgent retrieves an agent of owner by ID.
func (m *MockStore) GetAgent(ctx context.Context, owner, id string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[id]
	if !ok || a.Owner != owner {
		return nil, ErrNotFound
	}
	return copyAgent(a, true), nil
}

// GetAgentByName retrieves an agent of owner by name.
func (m *MockStore) GetAgentByName(ctx context.Context, owner, name string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.nameIndex[nameKey(owner, name)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAgent(m.agents[id], true), nil
}

// ListAgents returns the agents of owner ordered by name, without transcripts.
func (m *MockStore) ListAgents(ctx context.Context, owner string) ([]*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var agents []*Agent
	for _, a := range m.agents {
		if a.Owner == owner {
			agents = append(agents, copyAgent(a, false))
		}
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents, nil
}

// UpdateInstructions overwrites the instructions of an agent.
func (m *MockStore) UpdateInstructions(ctx context.Context, owner, name, instructions string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.nameIndex[nameKey(owner, name)]
	if !ok {
		return ErrNotFound
	}
	a := m.agents[id]
	a.Instructions = instructions
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteAgent removes an agent; a missing agent is not an error.
func (m *MockStore) DeleteAgent(ctx context.Context, owner, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := nameKey(owner, name)
	id, ok := m.nameIndex[key]
	if !ok {
		return false, nil
	}
	delete(m.nameIndex, key)
	delete(m.agents, id)
	return true, nil
}

// AppendTurn appends an exchange to the agent transcript.
func (m *MockStore) AppendTurn(ctx context.Context, agentID string, turn Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	a.Messages = append(a.Messages, turn)
	return nil
}

// Ping returns PingErr.
func (m *MockStore) Ping(ctx context.Context) error {
	return m.PingErr
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

func copyAgent(a *Agent, withMessages bool) *Agent {
	c := *a
	c.Messages = nil
	if withMessages && len(a.Messages) > 0 {
		c.Messages = append([]Turn(nil), a.Messages...)
	}
	return &c
}

// Ensure MockStore implements Store interface
var _ Store = (*MockStore)(nil)
