package mailer

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogMailer writes messages to the log instead of delivering them.
type LogMailer struct {
	logger logrus.FieldLogger
}

func NewLogMailer() *LogMailer {
	return &LogMailer{logger: logrus.StandardLogger()}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.WithFields(logrus.Fields{
		"to":      strings.Join(msg.To, ", "),
		"subject": msg.Subject,
		"body":    msg.HTMLBody,
	}).Info("Outgoing email")
	return nil
}
