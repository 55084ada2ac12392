package email

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"tanbih/internal/domain"
)

// Client sends via SendGrid. Without an API key the channel fails
// closed: Send reports not-configured instead of silently skipping.
type Client struct {
	APIKey    string
	FromEmail string
	FromName  string

	sg *sendgrid.Client
}

func New(apiKey, fromEmail, fromName string) *Client {
	c := &Client{APIKey: apiKey, FromEmail: fromEmail, FromName: fromName}
	if apiKey != "" {
		c.sg = sendgrid.NewSendClient(apiKey)
	}
	return c
}

func (c *Client) Configured() bool { return c.APIKey != "" }

func (c *Client) Send(ctx context.Context, toEmail, toName, subject, htmlBody string) (string, error) {
	if c.sg == nil {
		return "", domain.ErrNotConfigured
	}

	from := mail.NewEmail(c.FromName, c.FromEmail)
	to := mail.NewEmail(toName, toEmail)
	msg := mail.NewSingleEmail(from, subject, to, htmlBody, htmlBody)

	resp, err := c.sg.SendWithContext(ctx, msg)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, resp.Body)
	}
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		return ids[0], nil
	}
	return "", nil
}
