package auth

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-claims-backend/internal/config"
)

// Mailer delivers sign-in links.
type Mailer interface {
	SendSignInLink(ctx context.Context, to, link string) error
}

// NewMailer returns a LogMailer in test mode and a ResendMailer otherwise.
func NewMailer(cfg config.MailConfig) Mailer {
	if cfg.TestMode {
		return LogMailer{}
	}
	return NewResendMailer(cfg.ResendAPIKey, cfg.From)
}

// LogMailer writes the link to the log instead of sending it.
type LogMailer struct{}

// SendSignInLink logs the link at info level.
func (LogMailer) SendSignInLink(_ context.Context, to, link string) error {
	log.Info().Str("to", to).Str("link", link).Msg("sign-in link (mail test mode, not sent)")
	return nil
}

// ResendMailer sends mails through the Resend API.
type ResendMailer struct {
	client *resend.Client
	from   string
}

// NewResendMailer creates a client for apiKey.
func NewResendMailer(apiKey, from string) *ResendMailer {
	return &ResendMailer{client: resend.NewClient(apiKey), from: from}
}

// SendSignInLink sends a short German text and HTML mail containing link.
func (m *ResendMailer) SendSignInLink(ctx context.Context, to, link string) error {
	params := &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: "Ihr Anmeldelink zur Schadenmeldung",
		Text:    "Hallo,\n\nmit diesem Link melden Sie sich an:\n" + link + "\n\nDer Link ist nur einmal gültig.",
		Html:    `<p>Hallo,</p><p>mit diesem Link melden Sie sich an:</p><p><a href="` + link + `">Jetzt anmelden</a></p><p>Der Link ist nur einmal gültig.</p>`,
	}
	sent, err := m.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send sign-in mail: %w", err)
	}
	log.Debug().Str("mail_id", sent.Id).Msg("sign-in mail sent")
	return nil
}
