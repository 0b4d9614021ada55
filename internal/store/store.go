// ABOUTME: Store interface and record types for persona-bot persistence
// ABOUTME: Defines Session, Agent and Turn plus the Store interface over them

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// ErrEmptyName is returned when an agent is written without a name
var ErrEmptyName = errors.New("agent name is required")

// State is the conversation flow a user is currently in.
// The zero value is StateNone.
type State string

const (
	StateNone                  State = ""
	StateCreatingAgent         State = "creating_agent"
	StateAwaitingInstructions  State = "awaiting_instructions"
	StateEditingAgent          State = "editing_agent"
	StateChatting              State = "chatting"
	StateAwaitingImagePrompt   State = "awaiting_image_prompt"
	StateAwaitingImageAnalysis State = "awaiting_image_analysis"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateNone, StateCreatingAgent, StateAwaitingInstructions, StateEditingAgent,
		StateChatting, StateAwaitingImagePrompt, StateAwaitingImageAnalysis:
		return true
	}
	return false
}

// String returns the state name, "none" for StateNone.
func (s State) String() string {
	if s == StateNone {
		return "none"
	}
	return string(s)
}

// Session is the per-user record tracking which flow the user is in.
type Session struct {
	UserID              string
	State               State
	PendingAgentName    string // set between CREATING_AGENT and AWAITING_INSTRUCTIONS
	SelectedAgentName   string // target of edit/delete
	ActiveChatAgentName string // agent receiving chat turns
	PendingImagePath    string // uploaded photo awaiting "analyze"
	PendingImageCaption string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ResetFlow returns the session to StateNone and drops the in-flight agent
// fields. The selected agent and any pending photo survive a reset.
func (s *Session) ResetFlow() {
	s.State = StateNone
	s.PendingAgentName = ""
	s.ActiveChatAgentName = ""
}

// ClearPendingImage forgets the uploaded photo.
func (s *Session) ClearPendingImage() {
	s.PendingImagePath = ""
	s.PendingImageCaption = ""
}

// Turn is one exchange in an agent transcript.
type Turn struct {
	User      string
	Bot       string
	CreatedAt time.Time
}

// Agent is a user-defined chat persona.
type Agent struct {
	ID           string
	Owner        string
	Name         string
	Instructions string
	Messages     []Turn // populated by point reads only
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store defines the interface for session and agent persistence.
// Operations are independent; there is no multi-record atomicity.
type Store interface {
	// Sessions
	GetSession(ctx context.Context, userID string) (*Session, error)
	SaveSession(ctx context.Context, session *Session) error

	// Agents
	PutAgent(ctx context.Context, agent *Agent) (replaced bool, err error)
	GetAgent(ctx context.Context, owner, id string) (*Agent, error)
	GetAgentByName(ctx context.Context, owner, name string) (*Agent, error)
	ListAgents(ctx context.Context, owner string) ([]*Agent, error)
	UpdateInstructions(ctx context.Context, owner, name, instructions string) error
	DeleteAgent(ctx context.Context, owner, name string) (bool, error)

	// Transcript
	AppendTurn(ctx context.Context, agentID string, turn Turn) error

	// Ping checks the store is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}
