package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/photonchat/photon/pkg/crypto"
	"github.com/photonchat/photon/pkg/model"
)

// AddUser registers a new account. secret is the client-supplied password hash,
// stored under Argon2id. A taken name, including one lost to a concurrent
// registration, returns ErrUserExists.
func (e *Engine) AddUser(ctx context.Context, name, secret string) (*model.User, error) {
	if err := model.ValidateUsername(name); err != nil {
		return nil, fmt.Errorf("datastore: add user: %w", err)
	}
	hash, err := crypto.HashPasswordWithParams(secret, e.params)
	if err != nil {
		return nil, fmt.Errorf("datastore: add user: %w", err)
	}
	now := time.Now().UTC()

	u := &model.User{Name: name, PasswordHash: hash, CreatedAt: now}
	after := func(res sql.Result) error {
		id, err := res.LastInsertId()
		u.ID = id
		return err
	}
	err = e.submit(ctx, "add_user",
		"INSERT INTO users (name, password_hash, admin, created_at) VALUES (?, ?, 0, ?)",
		after, name, hash, formatDBTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("datastore: add user: %w", err)
	}
	return u, nil
}

// SetAdminStatus grants or revokes admin rights. The system user cannot be changed.
func (e *Engine) SetAdminStatus(ctx context.Context, userID int64, admin bool) error {
	after := func(res sql.Result) error {
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrUserNotFound
		}
		return nil
	}
	err := e.submit(ctx, "set_admin_status", "UPDATE users SET admin = ? WHERE id = ? AND id != ?", after, admin, userID, model.SystemUserID)
	if err != nil {
		return fmt.Errorf("datastore: set admin status: %w", err)
	}
	return nil
}

// QueryLogin checks credentials. Unknown names and the system user are
// reported as invalid, not as errors.
func (e *Engine) QueryLogin(ctx context.Context, name, secret string) (model.LoginResult, error) {
	if name == model.SystemUserName {
		return model.LoginResult{}, nil
	}
	var res model.LoginResult
	var hash string
	err := e.rdb.QueryRowContext(ctx, "SELECT id, password_hash, admin FROM users WHERE name = ?", name).
		Scan(&res.UserID, &hash, &res.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LoginResult{}, nil
	}
	if err != nil {
		return model.LoginResult{}, fmt.Errorf("datastore: query login: %w", err)
	}
	if !crypto.VerifyPassword(hash, secret) {
		return model.LoginResult{}, nil
	}
	res.Valid = true
	return res, nil
}

// UserExists reports whether a name is registered.
func (e *Engine) UserExists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := e.rdb.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE name = ?", name).Scan(&n); err != nil {
		return false, fmt.Errorf("datastore: user exists: %w", err)
	}
	return n > 0, nil
}

// GetUser retrieves a user by name.
func (e *Engine) GetUser(ctx context.Context, name string) (*model.User, error) {
	u := &model.User{}
	var createdAt string
	err := e.rdb.QueryRowContext(ctx, "SELECT id, name, password_hash, admin, created_at FROM users WHERE name = ?", name).
		Scan(&u.ID, &u.Name, &u.PasswordHash, &u.IsAdmin, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get user: %w", err)
	}
	if u.CreatedAt, err = parseDBTime(createdAt); err != nil {
		return nil, fmt.Errorf("datastore: get user: %w", err)
	}
	return u, nil
}

// ListUsers returns every account except the system user, by id.
func (e *Engine) ListUsers(ctx context.Context) ([]model.UserSummary, error) {
	rows, err := e.rdb.QueryContext(ctx, "SELECT id, name, admin FROM users WHERE id != ? ORDER BY id", model.SystemUserID)
	if err != nil {
		return nil, fmt.Errorf("datastore: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	users := []model.UserSummary{}
	for rows.Next() {
		var u model.UserSummary
		if err := rows.Scan(&u.ID, &u.Name, &u.IsAdmin); err != nil {
			return nil, fmt.Errorf("datastore: scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetUserDetails returns the moderation view of a user: message count and
// the reports filed against them.
func (e *Engine) GetUserDetails(ctx context.Context, name string) (*model.UserDetails, error) {
	if name == model.SystemUserName {
		return nil, ErrUserNotFound
	}
	u, err := e.GetUser(ctx, name)
	if err != nil {
		return nil, err
	}
	d := &model.UserDetails{ID: u.ID, Name: u.Name, IsAdmin: u.IsAdmin, Reports: []model.ReportDetail{}}
	if err := e.rdb.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE sender_id = ?", u.ID).Scan(&d.MessageCount); err != nil {
		return nil, fmt.Errorf("datastore: count messages: %w", err)
	}
	if d.Reports, err = e.reportsAgainst(ctx, u.ID); err != nil {
		return nil, err
	}
	return d, nil
}
