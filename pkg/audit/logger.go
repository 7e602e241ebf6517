package audit

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error
}

// Nop returns a logger that discards events
func Nop() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Log(context.Context, *Event) error { return nil }

// LogrusLogger writes audit events as structured log entries
type LogrusLogger struct {
	logger logrus.FieldLogger
}

// NewLogrusLogger creates an audit logger writing to logger
func NewLogrusLogger(logger logrus.FieldLogger) *LogrusLogger {
	return &LogrusLogger{logger: logger}
}

// Log writes event at warning level
func (l *LogrusLogger) Log(_ context.Context, event *Event) error {
	fields := logrus.Fields{
		"audit":      true,
		"event_type": event.Type,
		"status":     event.Status,
	}
	if event.UserID != nil {
		fields["user_id"] = *event.UserID
	}
	if event.Subject != "" {
		fields["subject"] = event.Subject
	}
	if event.Operation != "" {
		fields["operation"] = event.Operation
	}
	if event.Target != "" {
		fields["target"] = event.Target
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.Path != "" {
		fields["method"] = event.Method
		fields["path"] = event.Path
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	l.logger.WithFields(fields).Warn(event.Message)
	return nil
}

// Record logs event to logger and reports a failure on fallback instead of
// returning it
func Record(ctx context.Context, logger Logger, fallback logrus.FieldLogger, event *Event) {
	if logger == nil {
		return
	}
	if err := logger.Log(ctx, event); err != nil && fallback != nil {
		fallback.WithError(err).WithField("event_type", event.Type).Error("failed to record audit event")
	}
}
