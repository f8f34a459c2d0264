package mail

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mailersend/mailersend-go"

	"github.com/nkiryanov/kaizen/internal/apperrors"
	"github.com/nkiryanov/kaizen/internal/logger"
)

type Recipient struct {
	Email string
	Name  string
}

type Message struct {
	To      []Recipient
	Subject string
	HTML    string
	Text    string
}

// Delivers already rendered messages
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type MailerSendConfig struct {
	APIKey      string
	SenderEmail string
	SenderName  string
}

// Sender backed by MailerSend HTTP API
type MailerSend struct {
	client *mailersend.Mailersend
	from   mailersend.From
}

func NewMailerSend(cfg MailerSendConfig) (*MailerSend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("mail service api key missing. Err: %w", apperrors.ErrConfiguration)
	}
	if cfg.SenderEmail == "" || cfg.SenderName == "" {
		return nil, fmt.Errorf("sender email and name not configured. Err: %w", apperrors.ErrConfiguration)
	}

	return &MailerSend{
		client: mailersend.NewMailersend(cfg.APIKey),
		from:   mailersend.From{Email: cfg.SenderEmail, Name: cfg.SenderName},
	}, nil
}

func (m *MailerSend) Send(ctx context.Context, msg Message) error {
	recipients := make([]mailersend.Recipient, 0, len(msg.To))
	for _, r := range msg.To {
		recipients = append(recipients, mailersend.Recipient{Email: r.Email, Name: r.Name})
	}

	message := m.client.Email.NewMessage()
	message.SetFrom(m.from)
	message.SetRecipients(recipients)
	message.SetSubject(msg.Subject)
	message.SetHTML(msg.HTML)
	message.SetText(msg.Text)

	res, err := m.client.Email.Send(ctx, message)
	if err != nil {
		if res != nil && res.Response != nil && res.StatusCode == http.StatusTooManyRequests {
			return NewRetryError(res.Header.Get("Retry-After"), err)
		}
		return fmt.Errorf("mailersend error: %w", err)
	}

	return nil
}

// Sender for local development: messages are written to the log
type LogSender struct {
	Logger logger.Logger
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	to := make([]string, 0, len(msg.To))
	for _, r := range msg.To {
		to = append(to, r.Email)
	}

	s.Logger.Info("Email not sent, no mail service configured", "to", to, "subject", msg.Subject, "text", msg.Text)
	return nil
}
