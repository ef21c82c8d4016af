package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/photonchat/photon/pkg/model"
)

const messageColumns = "id, sender_id, sender_name, contents, time_sent, recipient_id, tag, edited"

// AddMessage persists msg and sets msg.ID to the id assigned by storage.
//
// The message is mirrored before it is queued, so mirror order matches write
// order and ids increase in the order AddMessage calls were enqueued.
func (e *Engine) AddMessage(ctx context.Context, msg *model.Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("datastore: add message: %w", err)
	}
	stored := *msg
	stored.ID = 0

	var id int64
	after := func(res sql.Result) error {
		var err error
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		e.mirror.assignID(&stored, id)
		return nil
	}
	j := newJob(ctx, "add_message",
		"INSERT INTO messages (sender_id, sender_name, contents, time_sent, recipient_id, tag, edited) VALUES (?, ?, ?, ?, ?, ?, ?)",
		after,
		[]any{stored.SenderID, stored.SenderName, stored.Contents, formatDBTime(stored.TimeSent), stored.RecipientID, stored.Tag, stored.Edited})
	j.fail = func() { e.mirror.remove(&stored) }

	e.seq.Lock()
	e.mirror.append(&stored)
	err := e.enqueue(j)
	e.seq.Unlock()
	if err != nil {
		e.mirror.remove(&stored)
		return fmt.Errorf("datastore: add message: %w", err)
	}

	if err := e.wait(ctx, j); err != nil {
		return fmt.Errorf("datastore: add message: %w", err)
	}
	msg.ID = id
	return nil
}

// EditMessage replaces the contents of a message and flags it edited.
// Tombstones are never edited: the guard runs in the writer, so a delete
// queued ahead of the edit wins and the edit fails with ErrMessageDeleted.
func (e *Engine) EditMessage(ctx context.Context, id int64, contents string) (*model.Message, error) {
	if contents == "" {
		return nil, fmt.Errorf("datastore: edit message: %w", model.ErrMessageContentsEmpty)
	}
	var edited model.Message
	var mirrored bool
	after := func(res sql.Result) error {
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return e.missingOrDeleted(ctx, id)
		}
		edited, mirrored = e.mirror.update(id, func(m *model.Message) {
			m.Contents = contents
			m.Edited = true
		})
		return nil
	}
	err := e.submit(ctx, "edit_message",
		"UPDATE messages SET contents = ?, edited = 1 WHERE id = ? AND NOT (sender_id = ? AND contents = ?)",
		after, contents, id, model.SystemUserID, model.Tombstone)
	if err != nil {
		return nil, fmt.Errorf("datastore: edit message: %w", err)
	}
	if mirrored {
		return &edited, nil
	}
	return e.MessageByID(ctx, id)
}

// DeleteMessage soft-deletes a message by overwriting it with the tombstone.
// It reports false when the message was already deleted.
func (e *Engine) DeleteMessage(ctx context.Context, id int64) (bool, error) {
	var changed bool
	after := func(res sql.Result) error {
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			if err := e.missingOrDeleted(ctx, id); !errors.Is(err, ErrMessageDeleted) {
				return err
			}
			return nil
		}
		changed = true
		e.mirror.update(id, (*model.Message).MarkDeleted)
		return nil
	}
	err := e.submit(ctx, "delete_message",
		"UPDATE messages SET contents = ?, sender_id = ?, sender_name = ?, tag = ? WHERE id = ? AND NOT (sender_id = ? AND contents = ?)",
		after,
		model.Tombstone, model.SystemUserID, model.SystemUserName, model.TagInfo, id, model.SystemUserID, model.Tombstone)
	if err != nil {
		return false, fmt.Errorf("datastore: delete message: %w", err)
	}
	return changed, nil
}

// missingOrDeleted explains a guarded update that matched no row. It runs in
// the writer, on the write handle.
func (e *Engine) missingOrDeleted(ctx context.Context, id int64) error {
	var exists int
	if err := e.wdb.QueryRowContext(context.WithoutCancel(ctx), "SELECT COUNT(*) FROM messages WHERE id = ?", id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrMessageNotFound
	}
	return ErrMessageDeleted
}

// MessageByID looks a message up in the mirror, then in storage.
func (e *Engine) MessageByID(ctx context.Context, id int64) (*model.Message, error) {
	if m, ok := e.mirror.Get(id); ok {
		return &m, nil
	}
	row := e.rdb.QueryRowContext(ctx, "SELECT "+messageColumns+" FROM messages WHERE id = ?", id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get message: %w", err)
	}
	return m, nil
}

// HistoryBackward yields committed messages from newest to oldest.
func (e *Engine) HistoryBackward() iter.Seq[model.Message] {
	return e.mirror.Backward()
}

func (e *Engine) loadHistory(ctx context.Context, limit int) error {
	rows, err := e.rdb.QueryContext(ctx, "SELECT "+messageColumns+" FROM messages ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return fmt.Errorf("datastore: load history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var newestFirst []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return fmt.Errorf("datastore: load history: %w", err)
		}
		newestFirst = append(newestFirst, m)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("datastore: load history: %w", err)
	}
	for i := len(newestFirst) - 1; i >= 0; i-- {
		e.mirror.append(newestFirst[i])
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (*model.Message, error) {
	var m model.Message
	var timeSent string
	if err := r.Scan(&m.ID, &m.SenderID, &m.SenderName, &m.Contents, &timeSent, &m.RecipientID, &m.Tag, &m.Edited); err != nil {
		return nil, err
	}
	t, err := parseDBTime(timeSent)
	if err != nil {
		return nil, err
	}
	m.TimeSent = t
	return &m, nil
}
