package relay

import (
	"go.uber.org/zap"
)

// connLogger writes socket lifecycle events with the user and socket ids
// attached.
type connLogger struct {
	logger *zap.Logger
}

func newConnLogger(l *zap.Logger) *connLogger {
	if l == nil {
		l = zap.L()
	}
	return &connLogger{logger: l.With(zap.String("component", "relay"))}
}

func (l *connLogger) Info(event, userID, clientID string, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.String("user_id", userID),
		zap.String("client_id", clientID),
	}, fields...)
	l.logger.Info("websocket_event", allFields...)
}

func (l *connLogger) Error(event, userID, clientID string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.String("user_id", userID),
		zap.String("client_id", clientID),
		zap.Error(err),
	}, fields...)
	l.logger.Error("websocket_error", allFields...)
}

func (l *connLogger) Warn(event, userID, clientID string, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.String("user_id", userID),
		zap.String("client_id", clientID),
	}, fields...)
	l.logger.Warn("websocket_warning", allFields...)
}
