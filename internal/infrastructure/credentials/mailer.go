package credentials

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/eventplanner/planner/pkg/logger"
)

// LogMailer writes outgoing mail to the log instead of delivering it.
type LogMailer struct {
	log zerolog.Logger
}

func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: logger.WithComponent(log, "mailer")}
}

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.log.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("mail queued")
	return nil
}
