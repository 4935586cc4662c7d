package models

import (
	"encoding/json"
	"time"
)

type NotificationSeverity string

const (
	NotificationSeverityInfo  NotificationSeverity = "info"
	NotificationSeverityError NotificationSeverity = "error"
)

type NotificationEvent string

const (
	NotificationEventReportReady  NotificationEvent = "report_ready"
	NotificationEventReportFailed NotificationEvent = "report_failed"
)

// Notification is an in-app message addressed to one user.
type Notification struct {
	ID        string               `json:"id" db:"id"`
	UserID    int64                `json:"user_id" db:"user_id"`
	EventType NotificationEvent    `json:"event_type" db:"event_type"`
	Severity  NotificationSeverity `json:"severity" db:"severity"`
	Title     string               `json:"title" db:"title"`
	Message   string               `json:"message" db:"message"`
	Metadata  json.RawMessage      `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time            `json:"created_at" db:"created_at"`
	ReadAt    *time.Time           `json:"read_at,omitempty" db:"read_at"`
}
