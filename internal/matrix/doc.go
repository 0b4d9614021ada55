// Package matrix connects persona-bot to Matrix rooms.
//
// # Inbound
//
// The bridge syncs with the homeserver, joins rooms it is invited to and
// turns each new m.room.message into a conversation event:
//
//   - m.text starting with "/" becomes a command
//   - a bare number answering the last numbered list becomes a button press
//   - other m.text becomes free text
//   - m.image becomes a photo, decrypted first in encrypted rooms
//
// Own messages, events from before startup, duplicates and rooms outside
// matrix.allowed_rooms are dropped. Events of one user are handled in order,
// one at a time; different users run concurrently.
//
// # Outbound
//
// Reply text is Markdown, sent with an HTML formatted_body rendered by
// goldmark. Buttons are appended as a numbered list and remembered per room
// and user until the next reply. Images are uploaded to the media repository,
// sent as m.image and then removed from disk.
package matrix
