// File: internal/notification/logger.go
package notification

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/arbiterdevs/btc-arbitration/pkg/utils"
)

// LogSink writes notifications to the application log. It is always wired so
// claim and ledger activity stays observable without an external endpoint.
type LogSink struct {
	logger *logrus.Entry
}

// NewLogSink creates a log sink
func NewLogSink() *LogSink {
	return &LogSink{logger: utils.ComponentLogger("notification.log")}
}

// Name identifies the sink in logs and metrics
func (s *LogSink) Name() string {
	return "log"
}

// Deliver writes the notification at info level
func (s *LogSink) Deliver(_ context.Context, n *Notification) error {
	s.logger.WithFields(logrus.Fields{
		"id":      n.ID,
		"kind":    n.Kind,
		"subject": n.Subject,
		"data":    n.Data,
	}).Info("Notification")
	return nil
}
