package model

import (
	"strings"
	"testing"
	"time"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid simple", "alice", nil},
		{"valid with numbers", "user123", nil},
		{"valid with underscore", "my_user", nil},
		{"valid with hyphen", "my-user", nil},
		{"case differs from system user", "server", nil},
		{"valid max length", strings.Repeat("a", MaxUsernameLength), nil},
		{"empty", "", ErrUsernameEmpty},
		{"too long", strings.Repeat("a", MaxUsernameLength+1), ErrUsernameTooLong},
		{"contains space", "has space", ErrUsernameInvalidChars},
		{"contains dot", "user.name", ErrUsernameInvalidChars},
		{"unicode letter", "ñoño", ErrUsernameInvalidChars},
		{"newline", "user\nname", ErrUsernameInvalidChars},
		{"reserved", SystemUserName, ErrUsernameReserved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if err != tt.wantErr {
				t.Errorf("ValidateUsername(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestMessageVisibleTo(t *testing.T) {
	public := Message{SenderID: 2, RecipientID: PublicRecipient}
	direct := Message{SenderID: 2, RecipientID: 3}

	tests := []struct {
		name   string
		msg    Message
		viewer int64
		want   bool
	}{
		{"public to anyone", public, 9, true},
		{"direct to sender", direct, 2, true},
		{"direct to recipient", direct, 3, true},
		{"direct to bystander", direct, 4, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.VisibleTo(tt.viewer); got != tt.want {
				t.Errorf("VisibleTo(%d) = %v, want %v", tt.viewer, got, tt.want)
			}
		})
	}
}

func TestMarkDeleted(t *testing.T) {
	m := &Message{ID: 7, SenderID: 4, SenderName: "alice", Contents: "oops", Tag: TagNormal}
	if m.IsTombstone() {
		t.Fatalf("IsTombstone: fresh message reported as deleted")
	}

	m.MarkDeleted()

	if !m.IsTombstone() {
		t.Fatalf("IsTombstone: expected true after MarkDeleted")
	}
	if m.ID != 7 {
		t.Errorf("MarkDeleted changed id to %d", m.ID)
	}
	if m.SenderName != SystemUserName || m.Tag != TagInfo {
		t.Errorf("MarkDeleted: got sender %q tag %q", m.SenderName, m.Tag)
	}
}

func TestNewSystemMessage(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := NewSystemMessage("alice joined", now)
	if !m.IsPublic() || m.SenderID != SystemUserID || !m.TimeSent.Equal(now) {
		t.Errorf("NewSystemMessage: unexpected %+v", m)
	}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
