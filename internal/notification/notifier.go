package notification

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Tubbz-alt/adsbrecorder/internal/models"
)

// Notifier delivers a persisted notification over an extra channel.
type Notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

// LogNotifier writes each notification to the log. It is the channel used when no
// push transport is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("notifier", "log").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, notif models.Notification) error {
	n.logger.Info().
		Str("notification_id", notif.ID).
		Int64("user_id", notif.UserID).
		Str("event_type", string(notif.EventType)).
		Msg(notif.Title)
	return nil
}

func (n *LogNotifier) String() string { return "LogNotifier" }

func logNotifyError(logger zerolog.Logger, err error, channel string, notif models.Notification) {
	if err == nil {
		return
	}
	logger.Warn().
		Err(err).
		Str("notification_id", notif.ID).
		Str("event_type", string(notif.EventType)).
		Str("channel", channel).
		Msg("failed to deliver notification")
}
