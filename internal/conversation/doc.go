// Package conversation implements the persona-bot dialogue: a small state
// machine over per-user sessions that creates, edits, deletes and chats with
// user-defined agents, and relays image generation and photo analysis.
//
// # Overview
//
// The package is transport-neutral. A transport turns platform messages into
// Events and renders Replies:
//
//	ev := conversation.NewTextEvent(userID, body)
//	reply := bot.HandleEvent(ctx, ev)
//	if reply != nil {
//		// send reply.Text, reply.Buttons, reply.Image
//	}
//
// # Flow
//
// Bot.HandleEvent re-reads the session from the store on every event, runs
// Machine.Handle, and writes the session back only if it changed. The
// machine holds no per-user memory; it is a function of (session, event).
//
// States and what free text means in each:
//
//   - none: shows the main menu
//   - creating_agent: text is the new agent's name
//   - awaiting_instructions: text is the instructions; the agent is stored
//   - editing_agent: text replaces the selected agent's instructions
//   - chatting: text is sent to the AI with the agent's instructions
//   - awaiting_image_prompt: text is an image description to generate
//   - awaiting_image_analysis: waits for a photo
//
// Photos are accepted in any state. The photo is kept in a per-user scratch
// file until the user taps Analyze, then removed whether or not the analysis
// succeeds.
//
// # Commands and Buttons
//
// Commands: /start, /help, /create, /list, /image, /stop. A command that
// would enter the state the user is already in is a no-op with no reply.
//
// Button tokens are create_agent, list_agents, main_menu, generate_image,
// analyze_image, analyze_photo, edit_bot, delete_bot, select_<agentID> and
// chat_<agentID>. Tokens carry the agent ID, so agent names may contain any
// character. Every button leaves the current text flow before acting.
//
// # Errors
//
// AI failures become a reply of the form "Error: <detail>" and the flow
// continues. Any other handler error, or a panic, is logged with the user and
// state; the session drops back to none and the user sees the main menu.
package conversation
