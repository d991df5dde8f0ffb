package sender

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/wneessen/go-mail"
)

// MailSender implements EmailSender over SMTP with go-mail.
type MailSender struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewMailSender(host, port, username, password, from string) (*MailSender, error) {
	if host == "" {
		return nil, fmt.Errorf("SMTP_HOST not set")
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT %q: %w", port, err)
	}
	if from == "" {
		from = username
	}
	return &MailSender{
		host:     host,
		port:     p,
		username: username,
		password: password,
		from:     from,
	}, nil
}

func (s *MailSender) SendEmail(ctx context.Context, to, subject, body string) (SendResult, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return SendResult{}, err
	}
	if err := msg.To(to); err != nil {
		return SendResult{}, err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, body)

	client, err := mail.NewClient(s.host,
		mail.WithPort(s.port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(s.username),
		mail.WithPassword(s.password),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return SendResult{}, err
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return SendResult{}, fmt.Errorf("smtp send failed: %w", err)
	}

	return SendResult{
		MessageID: fmt.Sprintf("smtp-%d", time.Now().UnixNano()),
		SentAt:    time.Now(),
	}, nil
}
