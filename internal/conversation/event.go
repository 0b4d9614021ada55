// ABOUTME: Transport-neutral inbound events and outbound replies
// ABOUTME: The Matrix bridge translates to and from these types

package conversation

import "strings"

// EventKind tells which handler family an Event goes to.
type EventKind int

const (
	EventCommand EventKind = iota + 1
	EventCallback
	EventText
	EventPhoto
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventCallback:
		return "callback"
	case EventText:
		return "text"
	case EventPhoto:
		return "photo"
	default:
		return "unknown"
	}
}

// Event is one inbound interaction from a user.
type Event struct {
	UserID string
	Kind   EventKind

	Command Command // EventCommand
	Args    string  // EventCommand, text after the command word
	Data    string  // EventCallback, the button token
	Text    string  // EventText
	Photo   *Photo  // EventPhoto
}

// Photo is an uploaded image with its optional caption.
type Photo struct {
	Data     []byte
	MIMEType string
	Caption  string
}

// NewTextEvent classifies a plain message as a command or free text.
func NewTextEvent(userID, text string) Event {
	if cmd, args, ok := ParseCommand(text); ok {
		return Event{UserID: userID, Kind: EventCommand, Command: cmd, Args: args}
	}
	return Event{UserID: userID, Kind: EventText, Text: text}
}

// NewCallbackEvent wraps a button token.
func NewCallbackEvent(userID, data string) Event {
	return Event{UserID: userID, Kind: EventCallback, Data: strings.TrimSpace(data)}
}

// NewPhotoEvent wraps an uploaded image.
func NewPhotoEvent(userID string, photo *Photo) Event {
	return Event{UserID: userID, Kind: EventPhoto, Photo: photo}
}

// Button is one labeled action the user can pick.
type Button struct {
	Label string
	Data  string
}

// Image is a local file to deliver as an attachment.
// The transport removes the file after sending it.
type Image struct {
	Path    string
	Caption string
}

// Reply is what the bot sends back. A nil *Reply means nothing is sent.
type Reply struct {
	Text    string
	Buttons [][]Button
	Image   *Image
}

// Flatten returns the buttons in display order.
func (r *Reply) Flatten() []Button {
	if r == nil {
		return nil
	}
	var out []Button
	for _, row := range r.Buttons {
		out = append(out, row...)
	}
	return out
}
