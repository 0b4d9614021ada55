// ABOUTME: User-facing texts and button keyboards for every conversation step
// ABOUTME: Texts are Markdown; the transport decides how to render them

package conversation

import (
	"fmt"

	"github.com/2389/persona-bot/internal/store"
)

const (
	welcomeText = "👋 Welcome to the AI Agent Manager!\n\n" +
		"Use the menu below or type a command:\n" +
		"- **/create** - create a new agent\n" +
		"- **/list** - view your agents\n" +
		"- **/image** - generate an image\n" +
		"- **/help** - show this help"

	helpText = "**Commands**\n\n" +
		"- **/start** - main menu\n" +
		"- **/create** [name] - create a new agent\n" +
		"- **/list** - view, edit, delete or chat with your agents\n" +
		"- **/image** [description] - generate an image from a description\n" +
		"- **/stop** - end a chat or cancel the current step\n\n" +
		"Send a photo at any time to have it analyzed."

	recoveryText = "👋 Welcome! Choose an option:"

	askAgentNameText     = "✏️ Send the name of your agent."
	emptyAgentNameText   = "The name cannot be empty. Send the name of your agent."
	askImagePromptText   = "🎨 Describe the image you want."
	emptyImagePromptText = "Please describe the image you want."
	askPhotoText         = "📷 Send the photo you want analyzed."
	photoExpectedText    = "Please send a photo, or /stop to cancel."
	photoGoneText        = "The photo is no longer available. Please send it again."
	emptyListText        = "❌ You have no agents yet. Create one to get started."
	selectAgentText      = "📜 Select an agent:"
	noSelectionText      = "Select an agent first."
	agentGoneText        = "That agent no longer exists."
	chatStoppedText      = "🛑 Chat stopped. Use /start to go back to the menu."
	cancelledText        = "Cancelled."
	generatedImageText   = "🖼️ Here is your image."
	unknownCommandFormat = "Unknown command /%s. Send /help for the list of commands."
)

func mainMenuButtons() [][]Button {
	return [][]Button{
		{actionButton("➕ Create Agent", ActionCreateAgent)},
		{actionButton("📜 List Agents", ActionListAgents)},
		{actionButton("🎨 Generate Image", ActionGenerateImage)},
		{actionButton("🔍 Analyze Image", ActionAnalyzeImage)},
	}
}

func backToMenuButtons() [][]Button {
	return [][]Button{{actionButton("🔙 Main Menu", ActionMainMenu)}}
}

// MainMenu is the short menu shown when a handler fails or the session
// cannot be loaded or saved.
func MainMenu() *Reply {
	return &Reply{Text: recoveryText, Buttons: mainMenuButtons()}
}

func welcomeReply() *Reply {
	return &Reply{Text: welcomeText, Buttons: mainMenuButtons()}
}

func helpReply() *Reply {
	return &Reply{Text: helpText, Buttons: mainMenuButtons()}
}

func textReply(text string) *Reply {
	return &Reply{Text: text}
}

func menuReply(text string) *Reply {
	return &Reply{Text: text, Buttons: backToMenuButtons()}
}

func gatewayErrorReply(err error) *Reply {
	return &Reply{Text: "Error: " + err.Error()}
}

func agentListReply(agents []*store.Agent) *Reply {
	if len(agents) == 0 {
		return &Reply{
			Text: emptyListText,
			Buttons: [][]Button{
				{actionButton("➕ Create Agent", ActionCreateAgent)},
				{actionButton("🔙 Back", ActionMainMenu)},
			},
		}
	}

	rows := make([][]Button, 0, len(agents)+1)
	for _, a := range agents {
		rows = append(rows, []Button{selectButton(a.Name, a.ID)})
	}
	rows = append(rows, []Button{actionButton("🔙 Back", ActionMainMenu)})
	return &Reply{Text: selectAgentText, Buttons: rows}
}

func agentMenuReply(agent *store.Agent) *Reply {
	return &Reply{
		Text: fmt.Sprintf("🤖 Agent '%s' selected! Choose an action:", agent.Name),
		Buttons: [][]Button{
			{actionButton("✏️ Edit Instructions", ActionEditAgent)},
			{actionButton("🗑️ Delete Agent", ActionDeleteAgent)},
			{chatButton("💬 Chat with Agent", agent.ID)},
			{actionButton("🔙 Back", ActionListAgents)},
		},
	}
}

func askInstructionsReply(name string) *Reply {
	return textReply(fmt.Sprintf("📜 Now send the instructions for '%s'.", name))
}

func agentCreatedReply(agent *store.Agent) *Reply {
	return &Reply{
		Text: fmt.Sprintf("✅ Agent '%s' created successfully!", agent.Name),
		Buttons: [][]Button{
			{chatButton("💬 Chat with "+agent.Name, agent.ID)},
			{actionButton("🔙 Main Menu", ActionMainMenu)},
		},
	}
}

func askNewInstructionsReply(name string) *Reply {
	return textReply(fmt.Sprintf("✏️ Send the new instructions for '%s'.", name))
}

func instructionsUpdatedReply(name string) *Reply {
	return menuReply(fmt.Sprintf("✅ Instructions for '%s' updated successfully!", name))
}

func agentDeletedReply(name string) *Reply {
	return menuReply(fmt.Sprintf("🗑️ Agent '%s' deleted successfully!", name))
}

func chatStartedReply(name string) *Reply {
	return textReply(fmt.Sprintf("🤖 Chatting with '%s'!\n\nType your message to chat.\nTo stop, send /stop.", name))
}

func chatEndedReply(name string) *Reply {
	return menuReply(fmt.Sprintf("Agent '%s' no longer exists. Chat ended.", name))
}

func chatResponseReply(name, response string) *Reply {
	return textReply(fmt.Sprintf("%s: %s", name, response))
}

func photoReceivedReply() *Reply {
	return &Reply{
		Text: "📷 Photo received. Tap Analyze to describe it.",
		Buttons: [][]Button{
			{actionButton("🔍 Analyze Photo", ActionAnalyzePhoto)},
			{actionButton("🔙 Main Menu", ActionMainMenu)},
		},
	}
}
