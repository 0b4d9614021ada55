// ABOUTME: Parses slash commands and button tokens into typed values
// ABOUTME: Parameterized tokens carry the agent ID, never the agent name

package conversation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCallback is returned for button tokens the bot never issued.
var ErrUnknownCallback = errors.New("unknown callback")

// Command is a slash command word without the slash.
type Command string

const (
	CommandStart  Command = "start"
	CommandHelp   Command = "help"
	CommandCreate Command = "create"
	CommandList   Command = "list"
	CommandImage  Command = "image"
	CommandStop   Command = "stop"
)

// Known reports whether the command has a handler.
func (c Command) Known() bool {
	switch c {
	case CommandStart, CommandHelp, CommandCreate, CommandList, CommandImage, CommandStop:
		return true
	}
	return false
}

// ParseCommand splits "/cmd@bot args" into its parts. ok is false when
// text is not shaped like a command; cmd may still be unknown when ok is true.
func ParseCommand(text string) (cmd Command, args string, ok bool) {
	text = strings.TrimSpace(text)
	if len(text) < 2 || text[0] != '/' {
		return "", "", false
	}

	word, rest, _ := strings.Cut(text[1:], " ")
	word, _, _ = strings.Cut(word, "@")
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" || strings.ContainsAny(word, "/\n\t") {
		return "", "", false
	}
	return Command(word), strings.TrimSpace(rest), true
}

// Action is the verb of a button token.
type Action string

const (
	ActionCreateAgent   Action = "create_agent"
	ActionListAgents    Action = "list_agents"
	ActionMainMenu      Action = "main_menu"
	ActionGenerateImage Action = "generate_image"
	ActionAnalyzeImage  Action = "analyze_image"
	ActionAnalyzePhoto  Action = "analyze_photo"
	ActionEditAgent     Action = "edit_bot"
	ActionDeleteAgent   Action = "delete_bot"
	ActionSelectAgent   Action = "select"
	ActionChatAgent     Action = "chat"
)

// Callback is a parsed button token.
type Callback struct {
	Action  Action
	AgentID string // select and chat only
}

// Data encodes the callback back into its token.
func (c Callback) Data() string {
	switch c.Action {
	case ActionSelectAgent, ActionChatAgent:
		return string(c.Action) + "_" + c.AgentID
	default:
		return string(c.Action)
	}
}

// ParseCallback decodes a button token.
func ParseCallback(data string) (Callback, error) {
	switch Action(data) {
	case ActionCreateAgent, ActionListAgents, ActionMainMenu, ActionGenerateImage,
		ActionAnalyzeImage, ActionAnalyzePhoto, ActionEditAgent, ActionDeleteAgent:
		return Callback{Action: Action(data)}, nil
	}

	for _, action := range []Action{ActionSelectAgent, ActionChatAgent} {
		prefix := string(action) + "_"
		if id, found := strings.CutPrefix(data, prefix); found {
			if id == "" {
				return Callback{}, fmt.Errorf("%w: %q has no agent", ErrUnknownCallback, data)
			}
			return Callback{Action: action, AgentID: id}, nil
		}
	}

	return Callback{}, fmt.Errorf("%w: %q", ErrUnknownCallback, data)
}

func selectButton(label, agentID string) Button {
	return Button{Label: label, Data: Callback{Action: ActionSelectAgent, AgentID: agentID}.Data()}
}

func chatButton(label, agentID string) Button {
	return Button{Label: label, Data: Callback{Action: ActionChatAgent, AgentID: agentID}.Data()}
}

func actionButton(label string, action Action) Button {
	return Button{Label: label, Data: string(action)}
}
