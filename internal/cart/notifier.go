package cart

import "go.uber.org/zap"

// Notifier shows a transient message to the user after a cart mutation
type Notifier interface {
	Notify(message string)
}

// LogNotifier writes notifications to the logger
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(message string) {
	n.logger.Info("Cart notification", zap.String("message", message))
}

// NopNotifier discards notifications
type NopNotifier struct{}

func (NopNotifier) Notify(string) {}
