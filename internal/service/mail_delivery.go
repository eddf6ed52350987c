package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/officehub-api/pkg/mailer"
)

// MailSender delivers a single e-mail.
type MailSender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// LogMailSender is used when no SMTP relay is configured; it only logs.
type LogMailSender struct {
	logger zerolog.Logger
}

// NewLogMailSender constructs a logging sender.
func NewLogMailSender(logger zerolog.Logger) *LogMailSender {
	return &LogMailSender{logger: logger.With().Str("component", "mail_delivery").Logger()}
}

// Send logs the message and returns nil to indicate success.
func (l *LogMailSender) Send(ctx context.Context, msg mailer.Message) error {
	l.logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("notification e-mail delivered to log")
	return nil
}
