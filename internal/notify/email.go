package notify

import (
	"context"
	"fmt"

	"salonbook/internal/config"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailSender delivers one message. SendGrid in production, a logger when
// no API key is configured.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
}

type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *zerolog.Logger
}

// NewEmailSender picks SendGrid when an API key is set and a log-only sender otherwise.
func NewEmailSender(cfg config.EmailConfig, logger *zerolog.Logger) EmailSender {
	if cfg.SendGridAPIKey == "" {
		return &LogEmailSender{logger: logger}
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.SendGridAPIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)

	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, html)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error().Int("status", response.StatusCode).Str("body", response.Body).Str("to", msg.To).Msg("SendGrid returned error status")
		return fmt.Errorf("sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Int("status", response.StatusCode).Msg("Email sent")
	return nil
}

// LogEmailSender only logs. Used in development and tests.
type LogEmailSender struct {
	logger *zerolog.Logger
}

func (s *LogEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("Email delivery disabled, message logged")
	return nil
}
