// ABOUTME: Behavioral tests run against every Store implementation
// ABOUTME: Keeps MockStore and SQLiteStore semantics in lockstep

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeImplementations(t *testing.T) map[string]Store {
	return map[string]Store{
		"sqlite": newTestStore(t),
		"mock":   NewMockStore(),
	}
}

func TestStore_Sessions(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.GetSession(ctx, "@nobody:example.org")
			assert.ErrorIs(t, err, ErrNotFound)

			sess := &Session{
				UserID:              "@alice:example.org",
				State:               StateChatting,
				SelectedAgentName:   "Helper",
				ActiveChatAgentName: "Helper",
				PendingImagePath:    "/tmp/photo.jpg",
				PendingImageCaption: "what is this",
			}
			require.NoError(t, s.SaveSession(ctx, sess))

			got, err := s.GetSession(ctx, "@alice:example.org")
			require.NoError(t, err)
			assert.Equal(t, StateChatting, got.State)
			assert.Equal(t, "Helper", got.SelectedAgentName)
			assert.Equal(t, "Helper", got.ActiveChatAgentName)
			assert.Equal(t, "/tmp/photo.jpg", got.PendingImagePath)
			assert.Equal(t, "what is this", got.PendingImageCaption)

			got.ResetFlow()
			require.NoError(t, s.SaveSession(ctx, got))

			got, err = s.GetSession(ctx, "@alice:example.org")
			require.NoError(t, err)
			assert.Equal(t, StateNone, got.State)
			assert.Empty(t, got.ActiveChatAgentName)
			assert.Equal(t, "Helper", got.SelectedAgentName, "reset keeps the selected agent")
			assert.Equal(t, "/tmp/photo.jpg", got.PendingImagePath, "reset keeps the pending photo")
		})
	}
}

func TestStore_PutAgentReplacesSameName(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			owner := "@alice:example.org"

			first := &Agent{Owner: owner, Name: "Helper", Instructions: "v1"}
			replaced, err := s.PutAgent(ctx, first)
			require.NoError(t, err)
			assert.False(t, replaced)
			require.NotEmpty(t, first.ID)

			require.NoError(t, s.AppendTurn(ctx, first.ID, Turn{User: "hi", Bot: "hello"}))

			second := &Agent{Owner: owner, Name: "Helper", Instructions: "v2"}
			replaced, err = s.PutAgent(ctx, second)
			require.NoError(t, err)
			assert.True(t, replaced)
			assert.Equal(t, first.ID, second.ID, "replacement keeps the agent ID")

			got, err := s.GetAgentByName(ctx, owner, "Helper")
			require.NoError(t, err)
			assert.Equal(t, "v2", got.Instructions)
			assert.Empty(t, got.Messages, "replacement starts a fresh transcript")

			agents, err := s.ListAgents(ctx, owner)
			require.NoError(t, err)
			assert.Len(t, agents, 1)
		})
	}
}

func TestStore_AgentsAreScopedByOwner(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			alice := &Agent{Owner: "@alice:example.org", Name: "Helper", Instructions: "alice"}
			bob := &Agent{Owner: "@bob:example.org", Name: "Helper", Instructions: "bob"}
			_, err := s.PutAgent(ctx, alice)
			require.NoError(t, err)
			_, err = s.PutAgent(ctx, bob)
			require.NoError(t, err)
			assert.NotEqual(t, alice.ID, bob.ID)

			_, err = s.GetAgent(ctx, "@bob:example.org", alice.ID)
			assert.ErrorIs(t, err, ErrNotFound)

			got, err := s.GetAgent(ctx, "@alice:example.org", alice.ID)
			require.NoError(t, err)
			assert.Equal(t, "alice", got.Instructions)
		})
	}
}

func TestStore_ListAgents(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			owner := "@alice:example.org"

			agents, err := s.ListAgents(ctx, owner)
			require.NoError(t, err)
			assert.Empty(t, agents)

			for _, n := range []string{"Zed", "Alpha", "Mid"} {
				_, err := s.PutAgent(ctx, &Agent{Owner: owner, Name: n, Instructions: "x"})
				require.NoError(t, err)
			}
			alpha, err := s.GetAgentByName(ctx, owner, "Alpha")
			require.NoError(t, err)
			require.NoError(t, s.AppendTurn(ctx, alpha.ID, Turn{User: "u", Bot: "b"}))

			agents, err = s.ListAgents(ctx, owner)
			require.NoError(t, err)
			require.Len(t, agents, 3)
			assert.Equal(t, "Alpha", agents[0].Name)
			assert.Equal(t, "Mid", agents[1].Name)
			assert.Equal(t, "Zed", agents[2].Name)
			assert.Empty(t, agents[0].Messages, "list does not load transcripts")
		})
	}
}

func TestStore_UpdateInstructionsKeepsMessages(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			owner := "@alice:example.org"

			agent := &Agent{Owner: owner, Name: "Helper", Instructions: "old"}
			_, err := s.PutAgent(ctx, agent)
			require.NoError(t, err)
			require.NoError(t, s.AppendTurn(ctx, agent.ID, Turn{User: "one", Bot: "1"}))
			require.NoError(t, s.AppendTurn(ctx, agent.ID, Turn{User: "two", Bot: "2"}))

			require.NoError(t, s.UpdateInstructions(ctx, owner, "Helper", "new"))

			got, err := s.GetAgentByName(ctx, owner, "Helper")
			require.NoError(t, err)
			assert.Equal(t, "new", got.Instructions)
			require.Len(t, got.Messages, 2)
			assert.Equal(t, "one", got.Messages[0].User)
			assert.Equal(t, "2", got.Messages[1].Bot)

			err = s.UpdateInstructions(ctx, owner, "Missing", "x")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_DeleteAgentIsIdempotent(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			owner := "@alice:example.org"

			deleted, err := s.DeleteAgent(ctx, owner, "Ghost")
			require.NoError(t, err)
			assert.False(t, deleted)

			_, err = s.PutAgent(ctx, &Agent{Owner: owner, Name: "Helper", Instructions: "x"})
			require.NoError(t, err)

			deleted, err = s.DeleteAgent(ctx, owner, "Helper")
			require.NoError(t, err)
			assert.True(t, deleted)

			deleted, err = s.DeleteAgent(ctx, owner, "Helper")
			require.NoError(t, err)
			assert.False(t, deleted)

			_, err = s.GetAgentByName(ctx, owner, "Helper")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_AppendTurnOrder(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			agent := &Agent{Owner: "@alice:example.org", Name: "Helper", Instructions: "x"}
			_, err := s.PutAgent(ctx, agent)
			require.NoError(t, err)

			for _, text := range []string{"a", "b", "c", "d"} {
				require.NoError(t, s.AppendTurn(ctx, agent.ID, Turn{User: text, Bot: text + "!"}))
			}

			got, err := s.GetAgent(ctx, agent.Owner, agent.ID)
			require.NoError(t, err)
			require.Len(t, got.Messages, 4)
			for i, want := range []string{"a", "b", "c", "d"} {
				assert.Equal(t, want, got.Messages[i].User)
				assert.Equal(t, want+"!", got.Messages[i].Bot)
				assert.False(t, got.Messages[i].CreatedAt.IsZero())
			}

			err = s.AppendTurn(ctx, "no-such-agent", Turn{User: "x", Bot: "y"})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestState_Valid(t *testing.T) {
	valid := []State{
		StateNone, StateCreatingAgent, StateAwaitingInstructions, StateEditingAgent,
		StateChatting, StateAwaitingImagePrompt, StateAwaitingImageAnalysis,
	}
	for _, s := range valid {
		assert.True(t, s.Valid(), "state %q should be valid", s)
	}
	assert.False(t, State("creating_bot").Valid())
	assert.Equal(t, "none", StateNone.String())
	assert.Equal(t, "chatting", StateChatting.String())
}
