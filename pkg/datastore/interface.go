package datastore

import (
	"context"
	"iter"

	"github.com/photonchat/photon/pkg/model"
)

// DataStore defines the persistence interface of the chat server.
// Engine is the SQLite implementation; tests may substitute their own.
type DataStore interface {
	UserReadProvider
	UserWriteProvider

	MessageReadProvider
	MessageWriteProvider

	ReportWriteProvider

	Snapshot(ctx context.Context, dest string) error
	QueueLen() int
	Close() error
}

// Compile-time check: *Engine implements DataStore.
var _ DataStore = (*Engine)(nil)

type UserReadProvider interface {
	QueryLogin(ctx context.Context, name, secret string) (model.LoginResult, error)
	UserExists(ctx context.Context, name string) (bool, error)
	GetUser(ctx context.Context, name string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.UserSummary, error)
	GetUserDetails(ctx context.Context, name string) (*model.UserDetails, error)
}

type UserWriteProvider interface {
	AddUser(ctx context.Context, name, secret string) (*model.User, error)
	SetAdminStatus(ctx context.Context, userID int64, admin bool) error
}

type MessageReadProvider interface {
	MessageByID(ctx context.Context, id int64) (*model.Message, error)
	HistoryBackward() iter.Seq[model.Message]
}

type MessageWriteProvider interface {
	AddMessage(ctx context.Context, msg *model.Message) error
	EditMessage(ctx context.Context, id int64, contents string) (*model.Message, error)
	DeleteMessage(ctx context.Context, id int64) (bool, error)
}

type ReportWriteProvider interface {
	AddReport(ctx context.Context, r *model.Report) error
}
