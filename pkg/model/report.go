package model

import "time"

// Report flags a message for moderator attention.
type Report struct {
	ID             int64     `json:"id"`
	ReportedUserID int64     `json:"reported_user_id"`
	MessageID      int64     `json:"message_id"`
	ReporterID     int64     `json:"reporter_id"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReportDetail is a report as shown in UserDetails.
type ReportDetail struct {
	MessageContents string `json:"message"`
	Reason          string `json:"reason"`
	ReporterName    string `json:"reporter_name"`
	ReporterID      int64  `json:"reporter_id"`
}
