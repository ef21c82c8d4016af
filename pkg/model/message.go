package model

import (
	"errors"
	"time"
)

// PublicRecipient is the recipient id of a broadcast message.
const PublicRecipient int64 = 0

// Tombstone is written over the contents of a deleted message.
const Tombstone = "_message deleted_"

// Message tags. Clients pick a colour per tag; the server only stores them.
const (
	TagNormal  = "normal"
	TagInfo    = "info"
	TagWhisper = "whisper"
)

var ErrMessageContentsEmpty = errors.New("message contents must not be empty")

// Message is one entry of the chat log.
//
// ID is zero until the writer has committed the row; see datastore.Mirror.
type Message struct {
	ID          int64     `json:"id"`
	SenderID    int64     `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	Contents    string    `json:"contents"`
	TimeSent    time.Time `json:"time_sent"`
	RecipientID int64     `json:"recipient_id"`
	Tag         string    `json:"tag"`
	Edited      bool      `json:"edited"`
}

// Validate rejects messages that must not be stored.
func (m *Message) Validate() error {
	if m.Contents == "" {
		return ErrMessageContentsEmpty
	}
	return nil
}

// IsPublic reports whether the message is addressed to everyone.
func (m *Message) IsPublic() bool {
	return m.RecipientID == PublicRecipient
}

// VisibleTo reports whether userID may see the message.
func (m *Message) VisibleTo(userID int64) bool {
	return m.IsPublic() || m.SenderID == userID || m.RecipientID == userID
}

// IsTombstone reports whether the message has been soft-deleted.
func (m *Message) IsTombstone() bool {
	return m.SenderID == SystemUserID && m.Contents == Tombstone
}

// MarkDeleted rewrites the message into its tombstone form.
func (m *Message) MarkDeleted() {
	m.Contents = Tombstone
	m.SenderID = SystemUserID
	m.SenderName = SystemUserName
	m.Tag = TagInfo
}

// NewSystemMessage builds a public notice sent by the system identity.
func NewSystemMessage(contents string, now time.Time) *Message {
	return &Message{
		SenderID:    SystemUserID,
		SenderName:  SystemUserName,
		Contents:    contents,
		TimeSent:    now,
		RecipientID: PublicRecipient,
		Tag:         TagInfo,
	}
}
