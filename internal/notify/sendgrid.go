package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"jaytaylor.com/html2text"
)

// SendGrid implements common.EmailSender with the SendGrid v3 mail API.
type SendGrid struct {
	client  *sendgrid.Client
	from    *mail.Email
	timeout time.Duration
}

// NewSendGrid builds a sender. baseURL overrides the API host and is empty in production.
func NewSendGrid(apiKey, fromEmail, fromName, baseURL string) (*SendGrid, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("sendgrid: api key is required")
	}
	if strings.TrimSpace(fromEmail) == "" {
		return nil, errors.New("sendgrid: from address is required")
	}
	client := sendgrid.NewSendClient(apiKey)
	if base := strings.TrimRight(strings.TrimSpace(baseURL), "/"); base != "" {
		client.BaseURL = base + "/v3/mail/send"
	}
	return &SendGrid{
		client:  client,
		from:    mail.NewEmail(fromName, fromEmail),
		timeout: 15 * time.Second,
	}, nil
}

// Send delivers an HTML email with a plain-text alternative.
func (s *SendGrid) Send(to, subject, htmlBody string) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("sendgrid: recipient is required")
	}
	text, err := html2text.FromString(htmlBody, html2text.Options{})
	if err != nil {
		return fmt.Errorf("sendgrid plain text: %w", err)
	}
	msg := mail.NewSingleEmail(s.from, subject, mail.NewEmail("", to), text, htmlBody)
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send failed: status=%d body=%s", resp.StatusCode, resp.Body)
	}
	return nil
}
