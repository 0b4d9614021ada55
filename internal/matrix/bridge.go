// ABOUTME: Matrix bridge core for persona-bot
// ABOUTME: Handles login, the sync loop, event filtering and per-user dispatch

package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/persona-bot/internal/config"
	"github.com/2389/persona-bot/internal/conversation"
	"github.com/2389/persona-bot/internal/dedupe"
)

const (
	// typingTimeout is how long the typing indicator shows unless cleared.
	typingTimeout = 30 * time.Second

	// networkTimeout bounds short Matrix API calls.
	networkTimeout = 10 * time.Second

	// sendTimeout bounds message sends and media uploads.
	sendTimeout = 60 * time.Second

	seenTTL      = 30 * time.Minute
	seenMaxSize  = 10000
	keyboardTTL  = 24 * time.Hour
	keyboardSize = 5000
)

// ErrNotSynced is returned by Ready before the first sync completes.
var ErrNotSynced = errors.New("matrix: initial sync not complete")

// Client is the subset of *mautrix.Client the bridge calls per event.
type Client interface {
	SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON interface{}, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error)
	UserTyping(ctx context.Context, roomID id.RoomID, typing bool, timeout time.Duration) (*mautrix.RespTyping, error)
	UploadBytes(ctx context.Context, data []byte, contentType string) (*mautrix.RespMediaUpload, error)
	DownloadBytes(ctx context.Context, mxcURL id.ContentURI) ([]byte, error)
	JoinRoomByID(ctx context.Context, roomID id.RoomID) (*mautrix.RespJoinRoom, error)
}

var _ Client = (*mautrix.Client)(nil)

// Handler turns one user event into a reply.
type Handler interface {
	HandleEvent(ctx context.Context, ev conversation.Event) *conversation.Reply
}

// Files reads and removes the image files replies point at.
type Files interface {
	Read(path string) ([]byte, error)
	Remove(path string) error
}

// Bridge connects Matrix rooms to the conversation handler.
type Bridge struct {
	config  config.MatrixConfig
	matrix  *mautrix.Client
	api     Client
	handler Handler
	files   Files
	logger  *slog.Logger

	// encrypted reports whether media sent to a room must be encrypted
	encrypted func(ctx context.Context, roomID id.RoomID) (bool, error)

	userID    id.UserID
	startedAt time.Time
	synced    atomic.Bool

	seen      *dedupe.Cache[struct{}]
	keyboards *keyboards
	users     *keyedMutex
	wg        sync.WaitGroup

	// ctx is the parent context for event processing goroutines
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBridge creates a new Matrix bridge. Call Login before Run.
func NewBridge(cfg config.MatrixConfig, handler Handler, files Files, logger *slog.Logger) (*Bridge, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	b := newBridge(cfg, client, handler, files, logger)
	b.matrix = client
	b.encrypted = func(ctx context.Context, roomID id.RoomID) (bool, error) {
		// Crypto and the state store are only set once SetupCrypto runs
		if client.Crypto == nil || client.StateStore == nil {
			return false, nil
		}
		return client.StateStore.IsEncrypted(ctx, roomID)
	}
	return b, nil
}

func newBridge(cfg config.MatrixConfig, api Client, handler Handler, files Files, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		config:    cfg,
		api:       api,
		handler:   handler,
		files:     files,
		logger:    logger.With("component", "matrix"),
		userID:    id.UserID(cfg.UserID),
		startedAt: time.Now(),
		seen:      dedupe.NewSeen(seenTTL, seenMaxSize),
		keyboards: newKeyboards(keyboardTTL, keyboardSize),
		users:     newKeyedMutex(),
		encrypted: func(context.Context, id.RoomID) (bool, error) { return false, nil },
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Login authenticates with the access token, or with username and password
// when no token is configured.
func (b *Bridge) Login(ctx context.Context) error {
	if b.config.AccessToken != "" {
		resp, err := b.matrix.Whoami(ctx)
		if err != nil {
			return fmt.Errorf("checking access token: %w", err)
		}
		b.matrix.UserID = resp.UserID
		b.matrix.DeviceID = resp.DeviceID
		b.userID = resp.UserID
		b.logger.Info("logged in with access token", "user_id", resp.UserID, "device_id", resp.DeviceID)
		return nil
	}

	resp, err := b.matrix.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: b.config.Username,
		},
		Password:                 b.config.Password,
		InitialDeviceDisplayName: "persona-bot",
		StoreCredentials:         true,
	})
	if err != nil {
		return fmt.Errorf("password login: %w", err)
	}
	b.userID = resp.UserID
	b.logger.Info("logged in with password", "user_id", resp.UserID, "device_id", resp.DeviceID)
	return nil
}

// UserID returns the bot's own Matrix user ID.
func (b *Bridge) UserID() string {
	return b.userID.String()
}

// Client returns the underlying mautrix client, for encryption setup.
func (b *Bridge) Client() *mautrix.Client {
	return b.matrix
}

// Ready reports whether the first sync has completed.
func (b *Bridge) Ready(ctx context.Context) error {
	if !b.synced.Load() {
		return ErrNotSynced
	}
	return nil
}

// Run starts syncing and blocks until ctx is cancelled or sync fails.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("starting matrix bridge",
		"homeserver", b.config.Homeserver,
		"user_id", b.userID.String(),
		"allowed_rooms", len(b.config.AllowedRooms),
	)
	defer b.close()

	syncer, ok := b.matrix.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.matrix.Syncer)
	}
	syncer.OnEventType(event.EventMessage, b.handleMessageEvent)
	syncer.OnEventType(event.StateMember, b.handleMemberEvent)
	syncer.OnSync(func(ctx context.Context, resp *mautrix.RespSync, since string) bool {
		if b.synced.CompareAndSwap(false, true) {
			b.logger.Info("initial sync complete")
		}
		return true
	})

	b.startedAt = time.Now()

	syncCtx, stop := context.WithCancel(ctx)
	defer stop()

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.matrix.SyncWithContext(syncCtx)
	}()

	b.logger.Info("matrix bridge running")

	select {
	case <-ctx.Done():
		b.logger.Info("shutting down matrix bridge")
		return nil
	case err := <-syncErr:
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// close cancels in-flight handlers and waits for them to finish.
func (b *Bridge) close() {
	b.cancel()
	b.wg.Wait()
	b.seen.Close()
	b.keyboards.Close()
}

// handleMemberEvent joins rooms the bot is invited to.
func (b *Bridge) handleMemberEvent(ctx context.Context, evt *event.Event) {
	if evt.GetStateKey() != b.userID.String() {
		return
	}
	member := evt.Content.AsMember()
	if member.Membership != event.MembershipInvite {
		return
	}
	if !b.isRoomAllowed(evt.RoomID.String()) {
		b.logger.Info("ignoring invite to non-allowed room", "room", evt.RoomID.String(), "inviter", evt.Sender.String())
		return
	}

	joinCtx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	if _, err := b.api.JoinRoomByID(joinCtx, evt.RoomID); err != nil {
		b.logger.Error("failed to join room", "room", evt.RoomID.String(), "error", err)
		return
	}
	b.logger.Info("joined room", "room", evt.RoomID.String(), "inviter", evt.Sender.String())
}

// handleMessageEvent filters incoming messages and processes the rest
// in the background so the sync loop never blocks.
func (b *Bridge) handleMessageEvent(ctx context.Context, evt *event.Event) {
	if !b.accept(evt) {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.process(b.ctx, evt)
	}()
}

// accept reports whether evt should reach the conversation handler.
func (b *Bridge) accept(evt *event.Event) bool {
	if evt.Sender == b.userID {
		return false
	}
	if evt.Timestamp < b.startedAt.UnixMilli() {
		return false
	}
	if !b.isRoomAllowed(evt.RoomID.String()) {
		b.logger.Debug("ignoring message from non-allowed room", "room", evt.RoomID.String())
		return false
	}
	if _, ok := evt.Content.Parsed.(*event.MessageEventContent); !ok {
		return false
	}
	if b.seen.CheckAndMark(evt.ID.String()) {
		b.logger.Debug("ignoring duplicate event", "event_id", evt.ID.String())
		return false
	}
	return true
}

// process runs one event through the handler and sends the reply.
// Events from the same user are handled one at a time.
func (b *Bridge) process(ctx context.Context, evt *event.Event) {
	sender := evt.Sender.String()
	unlock := b.users.Lock(sender)
	defer unlock()

	logger := b.logger.With("room", evt.RoomID.String(), "sender", sender)

	ev, ok, err := b.toEvent(ctx, evt)
	if err != nil {
		logger.Error("failed to read message", "error", err)
		b.sendText(ctx, evt.RoomID, "Could not read that message. Please try again.")
		return
	}
	if !ok {
		return
	}

	logger.Info("received event", "kind", ev.Kind.String())

	if b.config.TypingIndicator {
		b.setTyping(evt.RoomID, true)
		defer b.setTyping(evt.RoomID, false)
	}

	reply := b.handler.HandleEvent(ctx, ev)
	b.sendReply(ctx, evt.RoomID, keyboardKey(evt.RoomID, evt.Sender), reply)
}

// isRoomAllowed checks if the room is in the allowed list.
func (b *Bridge) isRoomAllowed(roomID string) bool {
	if len(b.config.AllowedRooms) == 0 {
		return true
	}
	for _, allowed := range b.config.AllowedRooms {
		if allowed == roomID {
			return true
		}
	}
	return false
}

// setTyping sends a typing indicator to the room.
func (b *Bridge) setTyping(roomID id.RoomID, typing bool) {
	var timeout time.Duration
	if typing {
		timeout = typingTimeout
	}
	// Not derived from the event context so the indicator is cleared during shutdown
	ctx, cancel := context.WithTimeout(context.Background(), networkTimeout)
	defer cancel()
	if _, err := b.api.UserTyping(ctx, roomID, typing, timeout); err != nil {
		b.logger.Debug("failed to set typing indicator", "room", roomID.String(), "error", err)
	}
}

// truncate shortens a string to the given max rune count, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
