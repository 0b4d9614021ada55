// ABOUTME: Sends conversation replies to Matrix rooms
// ABOUTME: Renders Markdown with goldmark, numbers buttons and uploads generated images

package matrix

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"maunium.net/go/mautrix/crypto/attachment"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/persona-bot/internal/conversation"
)

const chooseHint = "_Reply with a number to choose._"

// sendReply delivers reply to the room and records its keyboard under key.
// A nil reply sends nothing and leaves the keyboard alone.
func (b *Bridge) sendReply(ctx context.Context, roomID id.RoomID, key string, reply *conversation.Reply) {
	if reply == nil {
		return
	}

	if reply.Image != nil {
		b.sendImage(ctx, roomID, reply.Image)
	}

	buttons := reply.Flatten()
	b.keyboards.Set(key, buttons)

	body := renderBody(reply.Text, buttons)
	if body == "" {
		return
	}
	b.sendMarkdown(ctx, roomID, body)
}

// renderBody appends the buttons to text as a numbered Markdown list.
func renderBody(text string, buttons []conversation.Button) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(text))
	if len(buttons) == 0 {
		return sb.String()
	}
	if sb.Len() > 0 {
		sb.WriteString("\n\n")
	}
	for i, btn := range buttons {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, btn.Label)
	}
	sb.WriteString("\n")
	sb.WriteString(chooseHint)
	return sb.String()
}

// renderHTML converts Markdown to the HTML Matrix clients show.
func renderHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// sendMarkdown sends md as the plain body with an HTML formatted body.
func (b *Bridge) sendMarkdown(ctx context.Context, roomID id.RoomID, md string) {
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    md,
	}
	if html, err := renderHTML(md); err != nil {
		b.logger.Warn("failed to convert markdown", "error", err)
	} else {
		content.Format = event.FormatHTML
		content.FormattedBody = html
	}
	b.send(ctx, roomID, content)
}

// sendText sends a plain text notice outside the conversation flow.
func (b *Bridge) sendText(ctx context.Context, roomID id.RoomID, text string) {
	b.send(ctx, roomID, &event.MessageEventContent{MsgType: event.MsgText, Body: text})
}

// sendImage uploads the file as m.image and removes it afterwards.
// A caption goes in the body, with the file name kept in filename.
func (b *Bridge) sendImage(ctx context.Context, roomID id.RoomID, img *conversation.Image) {
	defer func() {
		if err := b.files.Remove(img.Path); err != nil {
			b.logger.Warn("failed to remove sent image", "path", img.Path, "error", err)
		}
	}()

	data, err := b.files.Read(img.Path)
	if err != nil {
		b.logger.Error("failed to read image for upload", "path", img.Path, "error", err)
		return
	}
	mimeType := http.DetectContentType(data)

	encrypted, err := b.encrypted(ctx, roomID)
	if err != nil {
		b.logger.Error("failed to check room encryption", "room", roomID.String(), "error", err)
		return
	}

	// Encrypted rooms get ciphertext on the media repo and the keys in the event
	upload, uploadType := data, mimeType
	var file *attachment.EncryptedFile
	if encrypted {
		file = attachment.NewEncryptedFile()
		upload = bytes.Clone(data)
		file.EncryptInPlace(upload)
		uploadType = "application/octet-stream"
	}

	upCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	resp, err := b.api.UploadBytes(upCtx, upload, uploadType)
	if err != nil {
		b.logger.Error("failed to upload image", "room", roomID.String(), "error", err)
		return
	}

	name := filepath.Base(img.Path)
	body := name
	if img.Caption != "" {
		body = img.Caption
	}
	content := &event.MessageEventContent{
		MsgType:  event.MsgImage,
		Body:     body,
		FileName: name,
		Info: &event.FileInfo{
			MimeType: mimeType,
			Size:     len(data),
		},
	}
	if file != nil {
		content.File = &event.EncryptedFileInfo{
			EncryptedFile: *file,
			URL:           resp.ContentURI.CUString(),
		}
	} else {
		content.URL = resp.ContentURI.CUString()
	}
	b.send(ctx, roomID, content)
}

func (b *Bridge) send(ctx context.Context, roomID id.RoomID, content *event.MessageEventContent) {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if _, err := b.api.SendMessageEvent(sendCtx, roomID, event.EventMessage, content); err != nil {
		b.logger.Error("failed to send message", "room", roomID.String(), "msgtype", string(content.MsgType), "error", err)
		return
	}
	b.logger.Debug("sent message", "room", roomID.String(), "msgtype", string(content.MsgType), "body", truncate(content.Body, 50))
}
