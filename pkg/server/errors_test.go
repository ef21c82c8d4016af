package server

import (
	"errors"
	"fmt"
	"testing"

	"github.com/photonchat/photon/pkg/datastore"
	pb "github.com/photonchat/photon/pkg/protocol/pb"
)

func TestStorageErrorMapping(t *testing.T) {
	type tcase struct {
		err      error
		wantKind Kind
		wantCode Code
	}
	tests := map[string]tcase{
		"queue full":    {err: datastore.ErrQueueFull, wantKind: KindStorage, wantCode: CodeQueueFull},
		"user exists":   {err: datastore.ErrUserExists, wantKind: KindAuth, wantCode: CodeDuplicateUser},
		"no user":       {err: datastore.ErrUserNotFound, wantKind: KindCommand, wantCode: CodeUnknownUser},
		"no message":    {err: fmt.Errorf("wrapped: %w", datastore.ErrMessageNotFound), wantKind: KindCommand, wantCode: CodeUnknownMessage},
		"deleted":       {err: fmt.Errorf("wrapped: %w", datastore.ErrMessageDeleted), wantKind: KindCommand, wantCode: CodeUnknownMessage},
		"anything else": {err: errors.New("disk on fire"), wantKind: KindStorage, wantCode: CodeStorage},
		"closed engine": {err: datastore.ErrClosed, wantKind: KindStorage, wantCode: CodeStorage},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			e := storageError("op", tc.err)
			if e.Kind != tc.wantKind || e.Code != tc.wantCode {
				t.Fatalf("got %s/%s, want %s/%s", e.Kind, e.Code, tc.wantKind, tc.wantCode)
			}
			if !errors.Is(e, tc.err) {
				t.Fatal("cause not unwrapped")
			}
		})
	}
}

func TestErrorIsMatchesCode(t *testing.T) {
	e := newError(KindAuth, CodeAlreadyLoggedIn, "LOGIN", errors.New("taken"))
	if !errors.Is(e, ErrAlreadyLoggedIn) {
		t.Fatal("errors.Is(e, ErrAlreadyLoggedIn) = false")
	}
	if errors.Is(e, ErrInvalidCredentials) {
		t.Fatal("errors.Is(e, ErrInvalidCredentials) = true")
	}
}

func TestErrorPacketHidesStorageDetails(t *testing.T) {
	e := storageError("MESSAGE", errors.New("database is locked"))
	pkt := e.packet(pb.TypeMessage)
	if pkt.Type != pb.TypeError || pkt.Error.Request != pb.TypeMessage {
		t.Fatalf("packet = %+v", pkt)
	}
	if pkt.Error.Message == "database is locked" || pkt.Error.Kind != string(KindStorage) {
		t.Fatalf("error body = %+v", pkt.Error)
	}

	e = protocolError(CodeMalformed, "LOGIN", "missing credentials")
	if msg := e.packet(pb.TypeLogin).Error.Message; msg != "missing credentials" {
		t.Fatalf("message = %q", msg)
	}
}
