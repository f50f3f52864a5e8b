package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier only logs; used in development when no mail relay exists.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg Notification) error {
	n.logger.Info("Notification",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Uint("request_id", msg.Body.RequestID),
		zap.String("status", msg.Body.Status),
	)
	return nil
}
