package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tubbz-alt/adsbrecorder/internal/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

type NotificationRepository interface {
	Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error)
	ListRecent(ctx context.Context, userID int64, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID int64, notificationID string) (models.Notification, error)
}

type CreateNotificationParams struct {
	UserID   int64
	Event    models.NotificationEvent
	Severity models.NotificationSeverity
	Title    string
	Message  string
	Metadata map[string]interface{}
}

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error) {
	const query = `
		INSERT INTO adsb.notifications (user_id, event_type, severity, title, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, event_type, severity, title, message, metadata, created_at, read_at
	`
	metadata, err := marshalMetadata(params.Metadata)
	if err != nil {
		return models.Notification{}, err
	}
	var metadataArg interface{}
	if metadata != nil {
		metadataArg = []byte(metadata)
	}

	row := r.db.QueryRowContext(ctx, query, params.UserID, params.Event, params.Severity, params.Title, params.Message, metadataArg)
	return scanNotification(row)
}

func (r *notificationRepository) ListRecent(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	limit = notificationLimit(limit)

	const query = `
		SELECT id, user_id, event_type, severity, title, message, metadata, created_at, read_at
		FROM adsb.notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]models.Notification, 0, limit)
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, notif)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID int64, notificationID string) (models.Notification, error) {
	const query = `
		UPDATE adsb.notifications
		SET read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, event_type, severity, title, message, metadata, created_at, read_at
	`
	if _, err := uuid.Parse(strings.TrimSpace(notificationID)); err != nil {
		return models.Notification{}, ErrNotificationNotFound
	}
	notif, err := scanNotification(r.db.QueryRowContext(ctx, query, strings.TrimSpace(notificationID), userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, ErrNotificationNotFound
	}
	return notif, err
}

func scanNotification(scanner interface {
	Scan(dest ...interface{}) error
}) (models.Notification, error) {
	var (
		notif       models.Notification
		metadataRaw []byte
		readAt      sql.NullTime
	)

	if err := scanner.Scan(
		&notif.ID,
		&notif.UserID,
		&notif.EventType,
		&notif.Severity,
		&notif.Title,
		&notif.Message,
		&metadataRaw,
		&notif.CreatedAt,
		&readAt,
	); err != nil {
		return models.Notification{}, err
	}

	if len(metadataRaw) > 0 {
		notif.Metadata = metadataRaw
	}
	if readAt.Valid {
		t := readAt.Time
		notif.ReadAt = &t
	}
	return notif, nil
}

// MemoryNotificationRepository keeps notifications in process memory for the memory driver.
type MemoryNotificationRepository struct {
	mu            sync.RWMutex
	notifications map[string]models.Notification
}

func NewMemoryNotificationRepository() *MemoryNotificationRepository {
	return &MemoryNotificationRepository{notifications: make(map[string]models.Notification)}
}

func (m *MemoryNotificationRepository) Create(_ context.Context, params CreateNotificationParams) (models.Notification, error) {
	metadata, err := marshalMetadata(params.Metadata)
	if err != nil {
		return models.Notification{}, err
	}
	notif := models.Notification{
		ID:        uuid.NewString(),
		UserID:    params.UserID,
		EventType: params.Event,
		Severity:  params.Severity,
		Title:     params.Title,
		Message:   params.Message,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.notifications[notif.ID] = notif
	m.mu.Unlock()
	return notif, nil
}

func (m *MemoryNotificationRepository) ListRecent(_ context.Context, userID int64, limit int) ([]models.Notification, error) {
	limit = notificationLimit(limit)

	m.mu.RLock()
	out := make([]models.Notification, 0)
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryNotificationRepository) MarkRead(_ context.Context, userID int64, notificationID string) (models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	notif, ok := m.notifications[strings.TrimSpace(notificationID)]
	if !ok || notif.UserID != userID {
		return models.Notification{}, ErrNotificationNotFound
	}
	if notif.ReadAt == nil {
		now := time.Now().UTC()
		notif.ReadAt = &now
		m.notifications[notif.ID] = notif
	}
	return notif, nil
}

func notificationLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 25
	}
	return limit
}

func marshalMetadata(metadata map[string]interface{}) (json.RawMessage, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return raw, nil
}
