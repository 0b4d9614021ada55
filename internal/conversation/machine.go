// ABOUTME: Conversation state machine mapping (session, event) to (session, reply)
// ABOUTME: Drives agent create/edit/delete/chat plus image generation and photo analysis

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/2389/persona-bot/internal/ai"
	"github.com/2389/persona-bot/internal/store"
)

// ErrUnknownState is returned when a session carries a state with no handler.
var ErrUnknownState = errors.New("unknown conversation state")

// maxAgentNameLen bounds agent names in runes.
const maxAgentNameLen = 64

// AgentStore defines what the machine needs from storage
type AgentStore interface {
	PutAgent(ctx context.Context, agent *store.Agent) (bool, error)
	GetAgent(ctx context.Context, owner, id string) (*store.Agent, error)
	GetAgentByName(ctx context.Context, owner, name string) (*store.Agent, error)
	ListAgents(ctx context.Context, owner string) ([]*store.Agent, error)
	UpdateInstructions(ctx context.Context, owner, name, instructions string) error
	DeleteAgent(ctx context.Context, owner, name string) (bool, error)
	AppendTurn(ctx context.Context, agentID string, turn store.Turn) error
}

// Files defines what the machine needs from transient media storage
type Files interface {
	SavePhoto(userID string, data []byte, ext string) (string, error)
	SaveGenerated(userID string, data []byte) (string, error)
	Read(path string) ([]byte, error)
	Remove(path string) error
}

// Machine is the transition function. It keeps no per-user state between
// calls; the session passed in is the whole truth.
type Machine struct {
	agents       AgentStore
	gateway      ai.Gateway
	files        Files
	historyTurns int
	logger       *slog.Logger
}

// NewMachine creates a Machine. historyTurns is how many earlier exchanges
// are replayed into each chat prompt.
func NewMachine(agents AgentStore, gateway ai.Gateway, files Files, historyTurns int, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		agents:       agents,
		gateway:      gateway,
		files:        files,
		historyTurns: historyTurns,
		logger:       logger.With("component", "machine"),
	}
}

// Handle computes the next session and the reply for one event.
// A nil reply with a nil error is a recognized no-op.
func (m *Machine) Handle(ctx context.Context, sess store.Session, ev Event) (store.Session, *Reply, error) {
	switch ev.Kind {
	case EventCommand:
		return m.handleCommand(ctx, sess, ev)
	case EventCallback:
		return m.handleCallback(ctx, sess, ev)
	case EventText:
		return m.handleText(ctx, sess, ev.Text)
	case EventPhoto:
		return m.handlePhoto(sess, ev)
	default:
		return sess, nil, fmt.Errorf("unhandled event kind %d", ev.Kind)
	}
}

// handleCommand runs a slash command. /create and /image accept their first
// answer inline, so "/image a red fox" generates without a second message.
func (m *Machine) handleCommand(ctx context.Context, sess store.Session, ev Event) (store.Session, *Reply, error) {
	if !ev.Command.Known() {
		return sess, textReply(fmt.Sprintf(unknownCommandFormat, ev.Command)), nil
	}

	switch ev.Command {
	case CommandStart:
		sess.ResetFlow()
		return sess, welcomeReply(), nil

	case CommandHelp:
		sess.ResetFlow()
		return sess, helpReply(), nil

	case CommandCreate:
		if ev.Args != "" {
			sess, _, _ = m.startCreate(sess)
			return m.receiveAgentName(sess, ev.Args)
		}
		if sess.State == store.StateCreatingAgent {
			return sess, nil, nil
		}
		return m.startCreate(sess)

	case CommandList:
		sess.ResetFlow()
		return m.listAgents(ctx, sess)

	case CommandImage:
		if ev.Args != "" {
			sess.ResetFlow()
			return m.generateImage(ctx, sess, ev.Args)
		}
		if sess.State == store.StateAwaitingImagePrompt {
			return sess, nil, nil
		}
		sess.ResetFlow()
		sess.State = store.StateAwaitingImagePrompt
		return sess, textReply(askImagePromptText), nil

	case CommandStop:
		switch sess.State {
		case store.StateChatting:
			sess.State = store.StateNone
			sess.ActiveChatAgentName = ""
			return sess, textReply(chatStoppedText), nil
		case store.StateNone:
			return sess, nil, nil
		default:
			sess.ResetFlow()
			return sess, menuReply(cancelledText), nil
		}

	default:
		return sess, nil, fmt.Errorf("command %q has no handler", ev.Command)
	}
}

func (m *Machine) handleCallback(ctx context.Context, sess store.Session, ev Event) (store.Session, *Reply, error) {
	cb, err := ParseCallback(ev.Data)
	if err != nil {
		return sess, nil, err
	}

	// Every button leaves the current text flow
	sess.ResetFlow()

	switch cb.Action {
	case ActionCreateAgent:
		return m.startCreate(sess)
	case ActionListAgents:
		return m.listAgents(ctx, sess)
	case ActionMainMenu:
		return sess, welcomeReply(), nil
	case ActionGenerateImage:
		sess.State = store.StateAwaitingImagePrompt
		return sess, textReply(askImagePromptText), nil
	case ActionAnalyzeImage:
		if sess.PendingImagePath != "" {
			return m.analyzePhoto(ctx, sess)
		}
		sess.State = store.StateAwaitingImageAnalysis
		return sess, textReply(askPhotoText), nil
	case ActionAnalyzePhoto:
		return m.analyzePhoto(ctx, sess)
	case ActionSelectAgent:
		return m.selectAgent(ctx, sess, cb.AgentID)
	case ActionEditAgent:
		if sess.SelectedAgentName == "" {
			return sess, menuReply(noSelectionText), nil
		}
		sess.State = store.StateEditingAgent
		return sess, askNewInstructionsReply(sess.SelectedAgentName), nil
	case ActionDeleteAgent:
		return m.deleteAgent(ctx, sess)
	case ActionChatAgent:
		return m.startChat(ctx, sess, cb.AgentID)
	default:
		return sess, nil, fmt.Errorf("%w: %q", ErrUnknownCallback, ev.Data)
	}
}

// handleText is the total mapping from state to free-text handler.
func (m *Machine) handleText(ctx context.Context, sess store.Session, text string) (store.Session, *Reply, error) {
	switch sess.State {
	case store.StateNone:
		return sess, welcomeReply(), nil
	case store.StateCreatingAgent:
		return m.receiveAgentName(sess, text)
	case store.StateAwaitingInstructions:
		return m.receiveInstructions(ctx, sess, text)
	case store.StateEditingAgent:
		return m.receiveNewInstructions(ctx, sess, text)
	case store.StateChatting:
		return m.chat(ctx, sess, text)
	case store.StateAwaitingImagePrompt:
		return m.generateImage(ctx, sess, text)
	case store.StateAwaitingImageAnalysis:
		return sess, textReply(photoExpectedText), nil
	default:
		return sess, nil, fmt.Errorf("%w: %q", ErrUnknownState, sess.State)
	}
}

func (m *Machine) startCreate(sess store.Session) (store.Session, *Reply, error) {
	sess.ResetFlow()
	sess.State = store.StateCreatingAgent
	return sess, textReply(askAgentNameText), nil
}

func (m *Machine) listAgents(ctx context.Context, sess store.Session) (store.Session, *Reply, error) {
	agents, err := m.agents.ListAgents(ctx, sess.UserID)
	if err != nil {
		return sess, nil, fmt.Errorf("listing agents: %w", err)
	}
	return sess, agentListReply(agents), nil
}

func (m *Machine) selectAgent(ctx context.Context, sess store.Session, agentID string) (store.Session, *Reply, error) {
	agent, err := m.agents.GetAgent(ctx, sess.UserID, agentID)
	if errors.Is(err, store.ErrNotFound) {
		sess.SelectedAgentName = ""
		return sess, menuReply(agentGoneText), nil
	}
	if err != nil {
		return sess, nil, fmt.Errorf("loading agent: %w", err)
	}

	sess.SelectedAgentName = agent.Name
	return sess, agentMenuReply(agent), nil
}

// deleteAgent succeeds whether or not the agent still exists.
func (m *Machine) deleteAgent(ctx context.Context, sess store.Session) (store.Session, *Reply, error) {
	name := sess.SelectedAgentName
	if name == "" {
		return sess, menuReply(noSelectionText), nil
	}

	existed, err := m.agents.DeleteAgent(ctx, sess.UserID, name)
	if err != nil {
		return sess, nil, fmt.Errorf("deleting agent: %w", err)
	}
	if !existed {
		m.logger.Debug("delete of missing agent", "user_id", sess.UserID, "name", name)
	}

	sess.SelectedAgentName = ""
	return sess, agentDeletedReply(name), nil
}

func (m *Machine) startChat(ctx context.Context, sess store.Session, agentID string) (store.Session, *Reply, error) {
	agent, err := m.agents.GetAgent(ctx, sess.UserID, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return sess, menuReply(agentGoneText), nil
	}
	if err != nil {
		return sess, nil, fmt.Errorf("loading agent: %w", err)
	}

	sess.State = store.StateChatting
	sess.SelectedAgentName = agent.Name
	sess.ActiveChatAgentName = agent.Name
	return sess, chatStartedReply(agent.Name), nil
}

func (m *Machine) receiveAgentName(sess store.Session, text string) (store.Session, *Reply, error) {
	name := strings.TrimSpace(text)
	if name == "" {
		return sess, textReply(emptyAgentNameText), nil
	}
	if utf8.RuneCountInString(name) > maxAgentNameLen {
		return sess, textReply(fmt.Sprintf("The name is too long (max %d characters). Send a shorter name.", maxAgentNameLen)), nil
	}

	sess.PendingAgentName = name
	sess.State = store.StateAwaitingInstructions
	return sess, askInstructionsReply(name), nil
}

func (m *Machine) receiveInstructions(ctx context.Context, sess store.Session, text string) (store.Session, *Reply, error) {
	if sess.PendingAgentName == "" {
		return sess, nil, errors.New("awaiting instructions without a pending agent name")
	}
	instructions := strings.TrimSpace(text)
	if instructions == "" {
		return sess, askInstructionsReply(sess.PendingAgentName), nil
	}

	agent := &store.Agent{
		Owner:        sess.UserID,
		Name:         sess.PendingAgentName,
		Instructions: instructions,
	}
	replaced, err := m.agents.PutAgent(ctx, agent)
	if err != nil {
		return sess, nil, fmt.Errorf("creating agent: %w", err)
	}
	if replaced {
		m.logger.Warn("agent name reused, previous agent replaced",
			"user_id", sess.UserID, "name", agent.Name, "agent_id", agent.ID)
	}

	sess.ResetFlow()
	return sess, agentCreatedReply(agent), nil
}

func (m *Machine) receiveNewInstructions(ctx context.Context, sess store.Session, text string) (store.Session, *Reply, error) {
	name := sess.SelectedAgentName
	if name == "" {
		return sess, nil, errors.New("editing without a selected agent")
	}
	instructions := strings.TrimSpace(text)
	if instructions == "" {
		return sess, askNewInstructionsReply(name), nil
	}

	err := m.agents.UpdateInstructions(ctx, sess.UserID, name, instructions)
	if errors.Is(err, store.ErrNotFound) {
		sess.ResetFlow()
		sess.SelectedAgentName = ""
		return sess, menuReply(agentGoneText), nil
	}
	if err != nil {
		return sess, nil, fmt.Errorf("updating instructions: %w", err)
	}

	sess.ResetFlow()
	return sess, instructionsUpdatedReply(name), nil
}

func (m *Machine) chat(ctx context.Context, sess store.Session, text string) (store.Session, *Reply, error) {
	name := sess.ActiveChatAgentName
	agent, err := m.agents.GetAgentByName(ctx, sess.UserID, name)
	if errors.Is(err, store.ErrNotFound) {
		sess.ResetFlow()
		return sess, chatEndedReply(name), nil
	}
	if err != nil {
		return sess, nil, fmt.Errorf("loading agent: %w", err)
	}

	prompt := BuildPrompt(agent.Instructions, recentTurns(agent.Messages, m.historyTurns), text)
	response, err := m.gateway.Complete(ctx, prompt)
	if err != nil {
		m.logger.Warn("chat completion failed", "user_id", sess.UserID, "agent_id", agent.ID, "error", err)
		return sess, gatewayErrorReply(err), nil
	}

	if err := m.agents.AppendTurn(ctx, agent.ID, store.Turn{User: text, Bot: response}); err != nil {
		// The answer is still worth delivering
		m.logger.Error("failed to record chat turn", "user_id", sess.UserID, "agent_id", agent.ID, "error", err)
	}

	return sess, chatResponseReply(agent.Name, response), nil
}

func (m *Machine) generateImage(ctx context.Context, sess store.Session, text string) (store.Session, *Reply, error) {
	prompt := strings.TrimSpace(text)
	if prompt == "" {
		return sess, textReply(emptyImagePromptText), nil
	}
	sess.ResetFlow()

	url, err := m.gateway.GenerateImage(ctx, prompt)
	if err != nil {
		m.logger.Warn("image generation failed", "user_id", sess.UserID, "error", err)
		return sess, gatewayErrorReply(err), nil
	}
	data, err := m.gateway.FetchImage(ctx, url)
	if err != nil {
		m.logger.Warn("image download failed", "user_id", sess.UserID, "error", err)
		return sess, gatewayErrorReply(err), nil
	}

	path, err := m.files.SaveGenerated(sess.UserID, data)
	if err != nil {
		return sess, nil, fmt.Errorf("saving generated image: %w", err)
	}

	return sess, &Reply{
		Text:  generatedImageText,
		Image: &Image{Path: path, Caption: prompt},
	}, nil
}

func (m *Machine) handlePhoto(sess store.Session, ev Event) (store.Session, *Reply, error) {
	if ev.Photo == nil || len(ev.Photo.Data) == 0 {
		return sess, nil, errors.New("photo event without image data")
	}

	path, err := m.files.SavePhoto(sess.UserID, ev.Photo.Data, extensionFor(ev.Photo.MIMEType))
	if err != nil {
		return sess, nil, fmt.Errorf("saving photo: %w", err)
	}

	// A different extension leaves the old upload behind
	if sess.PendingImagePath != "" && sess.PendingImagePath != path {
		m.removeFile(sess.UserID, sess.PendingImagePath)
	}

	sess.ResetFlow()
	sess.PendingImagePath = path
	sess.PendingImageCaption = strings.TrimSpace(ev.Photo.Caption)
	return sess, photoReceivedReply(), nil
}

// analyzePhoto runs vision on the pending photo. The transient file is
// removed whatever the outcome.
func (m *Machine) analyzePhoto(ctx context.Context, sess store.Session) (store.Session, *Reply, error) {
	path := sess.PendingImagePath
	if path == "" {
		sess.State = store.StateAwaitingImageAnalysis
		return sess, textReply(askPhotoText), nil
	}
	caption := sess.PendingImageCaption

	sess.ClearPendingImage()
	sess.State = store.StateNone
	defer m.removeFile(sess.UserID, path)

	data, err := m.files.Read(path)
	if err != nil {
		m.logger.Warn("pending photo unreadable", "user_id", sess.UserID, "path", path, "error", err)
		sess.State = store.StateAwaitingImageAnalysis
		return sess, textReply(photoGoneText), nil
	}

	description, err := m.gateway.DescribeImage(ctx, data, mime.TypeByExtension(filepath.Ext(path)), caption)
	if err != nil {
		m.logger.Warn("vision analysis failed", "user_id", sess.UserID, "error", err)
		return sess, gatewayErrorReply(err), nil
	}

	return sess, textReply(description), nil
}

// removeFile logs and swallows cleanup failures.
func (m *Machine) removeFile(userID, path string) {
	if err := m.files.Remove(path); err != nil {
		m.logger.Warn("failed to remove transient file", "user_id", userID, "path", path, "error", err)
	}
}

// BuildPrompt renders the chat prompt: the agent instructions, then the
// replayed history, then the new message awaiting the AI turn.
func BuildPrompt(instructions string, history []store.Turn, text string) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n")
	for _, t := range history {
		fmt.Fprintf(&b, "User: %s\nAI: %s\n", t.User, t.Bot)
	}
	fmt.Fprintf(&b, "User: %s\nAI:", text)
	return b.String()
}

func recentTurns(turns []store.Turn, n int) []store.Turn {
	if n <= 0 {
		return nil
	}
	if len(turns) > n {
		return turns[len(turns)-n:]
	}
	return turns
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "jpg"
	}
}
