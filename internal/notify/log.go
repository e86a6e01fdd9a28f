package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogDispatcher logs messages instead of sending them. Used when mail is
// disabled and in tests.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a logging dispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Send logs the message at debug level.
func (d *LogDispatcher) Send(_ context.Context, msg Message) error {
	d.logger.Debug("notification suppressed, mail disabled",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
