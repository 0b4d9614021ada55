// ABOUTME: Bot dispatches one event: load session, run the machine, persist, reply
// ABOUTME: Any handler error or panic is logged and answered with the main menu

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/2389/persona-bot/internal/ai"
	"github.com/2389/persona-bot/internal/store"
)

// SessionStore defines what the dispatcher needs from storage
type SessionStore interface {
	GetSession(ctx context.Context, userID string) (*store.Session, error)
	SaveSession(ctx context.Context, session *store.Session) error
}

// Store is the full storage surface the bot uses.
type Store interface {
	SessionStore
	AgentStore
}

// Bot is the transport-facing entry point.
type Bot struct {
	sessions SessionStore
	machine  *Machine
	logger   *slog.Logger
}

// Options tunes the bot.
type Options struct {
	// HistoryTurns is how many earlier exchanges are replayed into chat prompts
	HistoryTurns int
}

// New creates a Bot over the given store, gateway and media files.
func New(s Store, gateway ai.Gateway, files Files, opts Options, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		sessions: s,
		machine:  NewMachine(s, gateway, files, opts.HistoryTurns, logger),
		logger:   logger.With("component", "conversation"),
	}
}

// HandleEvent processes one event for one user and returns the reply to send,
// or nil when there is nothing to send. It never returns an error: failures
// are logged and the user gets the main menu.
func (b *Bot) HandleEvent(ctx context.Context, ev Event) (reply *Reply) {
	logger := b.logger.With("user_id", ev.UserID, "event", ev.Kind.String())

	sess, err := b.loadSession(ctx, ev.UserID)
	if err != nil {
		logger.Error("failed to load session", "error", err)
		return MainMenu()
	}
	before := *sess

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in conversation handler",
				"state", before.State.String(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			reply = b.resetToMenu(ctx, before, logger)
		}
	}()

	next, reply, err := b.machine.Handle(ctx, before, ev)
	if err != nil {
		logger.Error("conversation handler failed", "state", before.State.String(), "error", err)
		return b.resetToMenu(ctx, before, logger)
	}

	if next != before {
		if err := b.sessions.SaveSession(ctx, &next); err != nil {
			logger.Error("failed to save session", "state", next.State.String(), "error", err)
			return MainMenu()
		}
		logger.Debug("session updated", "from", before.State.String(), "to", next.State.String())
	}

	return reply
}

func (b *Bot) loadSession(ctx context.Context, userID string) (*store.Session, error) {
	sess, err := b.sessions.GetSession(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &store.Session{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if !sess.State.Valid() {
		// Leave it for the machine to reject so the reset path runs
		b.logger.Warn("session has unknown state", "user_id", userID, "state", string(sess.State))
	}
	return sess, nil
}

// resetToMenu drops the user out of any half-finished flow so the next message
// starts clean, then shows the main menu.
func (b *Bot) resetToMenu(ctx context.Context, sess store.Session, logger *slog.Logger) *Reply {
	reset := sess
	reset.ResetFlow()
	if reset != sess {
		if err := b.sessions.SaveSession(ctx, &reset); err != nil {
			logger.Error("failed to reset session", "error", err)
		}
	}
	return MainMenu()
}
