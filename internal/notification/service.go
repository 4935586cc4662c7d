package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Tubbz-alt/adsbrecorder/internal/models"
	"github.com/Tubbz-alt/adsbrecorder/internal/repository"
)

type Event struct {
	UserID   int64
	Event    models.NotificationEvent
	Severity models.NotificationSeverity
	Title    string
	Message  string
	Metadata map[string]interface{}
}

type Service interface {
	Publish(ctx context.Context, evt Event) (models.Notification, error)
	// NotifyReportFinished tells the job's owner how execution ended.
	NotifyReportFinished(ctx context.Context, job models.ReportJob, runErr error) error
	ListRecent(ctx context.Context, userID int64, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID int64, notificationID string) (models.Notification, error)
}

type service struct {
	repo      repository.NotificationRepository
	logger    zerolog.Logger
	notifiers []Notifier
}

func NewService(repo repository.NotificationRepository, logger zerolog.Logger, notifiers ...Notifier) Service {
	active := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			active = append(active, notifier)
		}
	}
	return &service{
		repo:      repo,
		logger:    logger.With().Str("component", "notification_service").Logger(),
		notifiers: active,
	}
}

func (s *service) Publish(ctx context.Context, evt Event) (models.Notification, error) {
	if evt.Event == "" {
		return models.Notification{}, fmt.Errorf("event type is required")
	}
	if evt.UserID == 0 {
		return models.Notification{}, fmt.Errorf("user id is required")
	}
	if evt.Severity == "" {
		evt.Severity = models.NotificationSeverityInfo
	}
	title := strings.TrimSpace(evt.Title)
	if title == "" {
		title = string(evt.Event)
	}

	notif, err := s.repo.Create(ctx, repository.CreateNotificationParams{
		UserID:   evt.UserID,
		Event:    evt.Event,
		Severity: evt.Severity,
		Title:    title,
		Message:  strings.TrimSpace(evt.Message),
		Metadata: evt.Metadata,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", string(evt.Event)).Msg("failed to persist notification")
		return models.Notification{}, err
	}
	for _, notifier := range s.notifiers {
		if err := notifier.Notify(ctx, notif); err != nil {
			logNotifyError(s.logger, err, notifierChannelName(notifier), notif)
		}
	}
	return notif, nil
}

func (s *service) NotifyReportFinished(ctx context.Context, job models.ReportJob, runErr error) error {
	name := fallbackName(job.ReportName, job.ID)
	metadata := map[string]interface{}{
		"report_job_id": job.ID,
		"report_type":   job.ReportType,
		"progress":      job.Progress,
	}

	evt := Event{UserID: job.SubmittedByUserID, Metadata: metadata}
	switch {
	case runErr != nil || job.Failed():
		reason := "Unknown error"
		if runErr != nil {
			reason = runErr.Error()
		}
		metadata["reason"] = reason
		evt.Event = models.NotificationEventReportFailed
		evt.Severity = models.NotificationSeverityError
		evt.Title = fmt.Sprintf("Report failed: %s", name)
		evt.Message = fmt.Sprintf("Report %s could not be generated: %s", name, reason)
	case job.Done():
		metadata["output_filename"] = job.OutputFilename
		evt.Event = models.NotificationEventReportReady
		evt.Title = fmt.Sprintf("Report ready: %s", name)
		evt.Message = fmt.Sprintf("Report %s is ready to download.", name)
	default:
		evt.Event = models.NotificationEventReportReady
		evt.Title = fmt.Sprintf("Report data ready: %s", name)
		evt.Message = fmt.Sprintf("The data file for report %s has been generated.", name)
	}

	_, err := s.Publish(ctx, evt)
	return err
}

func (s *service) ListRecent(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	return s.repo.ListRecent(ctx, userID, limit)
}

func (s *service) MarkRead(ctx context.Context, userID int64, notificationID string) (models.Notification, error) {
	return s.repo.MarkRead(ctx, userID, notificationID)
}

func fallbackName(name, fallback string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return fallback
}

func notifierChannelName(n Notifier) string {
	type named interface {
		String() string
	}
	if v, ok := n.(named); ok {
		return v.String()
	}
	return fmt.Sprintf("%T", n)
}
