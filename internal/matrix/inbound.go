// ABOUTME: Maps Matrix message events onto conversation events
// ABOUTME: Numbered replies become button presses, images are downloaded and decrypted

package matrix

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/persona-bot/internal/conversation"
)

// maxPhotoBytes caps downloaded images.
const maxPhotoBytes = 20 << 20

// toEvent converts a Matrix message. ok is false for messages the bot ignores.
func (b *Bridge) toEvent(ctx context.Context, evt *event.Event) (ev conversation.Event, ok bool, err error) {
	content, isMsg := evt.Content.Parsed.(*event.MessageEventContent)
	if !isMsg {
		return conversation.Event{}, false, nil
	}
	sender := evt.Sender.String()

	switch content.MsgType {
	case event.MsgText:
		content.RemoveReplyFallback()
		text := strings.TrimSpace(content.Body)
		if text == "" {
			return conversation.Event{}, false, nil
		}
		if data, pressed := b.buttonPress(evt.RoomID, evt.Sender, text); pressed {
			return conversation.NewCallbackEvent(sender, data), true, nil
		}
		return conversation.NewTextEvent(sender, text), true, nil

	case event.MsgImage:
		photo, err := b.downloadPhoto(ctx, content)
		if err != nil {
			return conversation.Event{}, false, err
		}
		return conversation.NewPhotoEvent(sender, photo), true, nil

	default:
		return conversation.Event{}, false, nil
	}
}

// buttonPress resolves a bare number against the keyboard last shown to
// the sender in this room.
func (b *Bridge) buttonPress(roomID id.RoomID, sender id.UserID, text string) (string, bool) {
	n, err := strconv.Atoi(text)
	if err != nil {
		return "", false
	}
	return b.keyboards.Pick(keyboardKey(roomID, sender), n)
}

// downloadPhoto fetches an m.image attachment, decrypting it when the
// room is encrypted.
func (b *Bridge) downloadPhoto(ctx context.Context, content *event.MessageEventContent) (*conversation.Photo, error) {
	if content.Info != nil && content.Info.Size > maxPhotoBytes {
		return nil, fmt.Errorf("image is %d bytes, limit is %d", content.Info.Size, maxPhotoBytes)
	}

	uriString := content.URL
	if content.File != nil {
		uriString = content.File.URL
	}
	uri, err := uriString.Parse()
	if err != nil {
		return nil, fmt.Errorf("parsing media URL: %w", err)
	}

	dlCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	data, err := b.api.DownloadBytes(dlCtx, uri)
	if err != nil {
		return nil, fmt.Errorf("downloading image: %w", err)
	}
	if len(data) > maxPhotoBytes {
		return nil, fmt.Errorf("image is %d bytes, limit is %d", len(data), maxPhotoBytes)
	}

	if content.File != nil {
		if err := content.File.DecryptInPlace(data); err != nil {
			return nil, fmt.Errorf("decrypting image: %w", err)
		}
	}

	mimeType := ""
	if content.Info != nil {
		mimeType = content.Info.MimeType
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	return &conversation.Photo{
		Data:     data,
		MIMEType: mimeType,
		Caption:  caption(content),
	}, nil
}

// caption returns the text sent along with a file. Clients put it in the
// body and the real name in filename; older clients only send the name.
func caption(content *event.MessageEventContent) string {
	if content.FileName == "" || content.FileName == content.Body {
		return ""
	}
	return strings.TrimSpace(content.Body)
}

func keyboardKey(roomID id.RoomID, sender id.UserID) string {
	return roomID.String() + "|" + sender.String()
}
