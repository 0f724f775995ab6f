package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/recorpproduction-prog/camcapprod/config"
	"github.com/wneessen/go-mail"
)

// ErrMailDisabled is returned when no SMTP host is configured.
var ErrMailDisabled = errors.New("mail not configured")

// Email is one outgoing message with an optional PDF attachment.
type Email struct {
	To             string
	Subject        string
	Body           string
	Attachment     []byte
	AttachmentName string
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// SMTPMailer sends mail through the configured SMTP relay.
type SMTPMailer struct {
	config *config.MailConfig
}

func NewSMTPMailer(cfg *config.MailConfig) *SMTPMailer {
	return &SMTPMailer{config: cfg}
}

func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	if m.config.Host == "" {
		return ErrMailDisabled
	}
	msg, err := m.buildMessage(email)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(30 * time.Second),
	}
	if m.config.Port > 0 {
		opts = append(opts, mail.WithPort(m.config.Port))
	}
	if m.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.config.Username),
			mail.WithPassword(m.config.Password),
		)
	}
	client, err := mail.NewClient(m.config.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", email.To, err)
	}
	return nil
}

func (m *SMTPMailer) buildMessage(email Email) (*mail.Msg, error) {
	if email.To == "" {
		return nil, errors.New("mail recipient required")
	}
	from := m.config.From
	if from == "" {
		from = m.config.Username
	}

	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := msg.To(email.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", email.To, err)
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(mail.TypeTextPlain, email.Body)
	if len(email.Attachment) > 0 {
		name := email.AttachmentName
		if name == "" {
			name = "sop.pdf"
		}
		if err := msg.AttachReader(name, bytes.NewReader(email.Attachment), mail.WithFileContentType("application/pdf")); err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", name, err)
		}
	}
	return msg, nil
}
