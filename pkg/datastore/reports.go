package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/photonchat/photon/pkg/model"
)

// AddReport records a report. ReportedUserID must be the actual sender of
// the reported message; the caller resolves it.
func (e *Engine) AddReport(ctx context.Context, r *model.Report) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	after := func(res sql.Result) error {
		var err error
		r.ID, err = res.LastInsertId()
		return err
	}
	err := e.submit(ctx, "add_report",
		"INSERT INTO reports (reported_user_id, message_id, reporter_id, reason, created_at) VALUES (?, ?, ?, ?, ?)",
		after, r.ReportedUserID, r.MessageID, r.ReporterID, r.Reason, formatDBTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("datastore: add report: %w", err)
	}
	return nil
}

func (e *Engine) reportsAgainst(ctx context.Context, userID int64) ([]model.ReportDetail, error) {
	rows, err := e.rdb.QueryContext(ctx, `
		SELECT m.contents, r.reason, u.name, r.reporter_id
		FROM reports r
		JOIN messages m ON m.id = r.message_id
		JOIN users u ON u.id = r.reporter_id
		WHERE r.reported_user_id = ?
		ORDER BY r.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("datastore: list reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	reports := []model.ReportDetail{}
	for rows.Next() {
		var d model.ReportDetail
		if err := rows.Scan(&d.MessageContents, &d.Reason, &d.ReporterName, &d.ReporterID); err != nil {
			return nil, fmt.Errorf("datastore: scan report: %w", err)
		}
		reports = append(reports, d)
	}
	return reports, rows.Err()
}
