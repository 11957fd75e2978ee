package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Text    string
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them. It is used
// when no mail provider is configured.
type LogMailer struct {
	Logger *zap.Logger
}

// Send implements Mailer.
func (m LogMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Logger.Info("email not sent, no mail provider configured",
		zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// SendGridConfig configures the SendGrid mailer.
type SendGridConfig struct {
	APIKey    string
	BaseURL   string
	FromEmail string
	FromName  string
	Timeout   time.Duration
}

// SendGrid sends mail through the SendGrid v3 mail send API.
type SendGrid struct {
	cfg        SendGridConfig
	httpClient *http.Client
}

// ErrNoMailKey is returned by NewSendGrid when no API key is configured.
var ErrNoMailKey = errors.New("sendgrid API key not configured")

// NewSendGrid returns a SendGrid mailer.
func NewSendGrid(cfg SendGridConfig) (*SendGrid, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoMailKey
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, fmt.Errorf("sendgrid: from address required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SendGrid{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}, nil
}

type emailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             emailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
}

type personalization struct {
	To []emailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// HTTPError is a non-2xx response from the provider.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if len(msg) > 500 {
		msg = msg[:500] + "..."
	}
	if msg == "" {
		msg = "<empty body>"
	}
	return fmt.Sprintf("sendgrid http %d: %s", e.StatusCode, msg)
}

// Send implements Mailer.
func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	wire := mailSendRequest{
		Personalizations: []personalization{{To: []emailAddress{{Email: msg.To}}}},
		From:             emailAddress{Email: s.cfg.FromEmail, Name: s.cfg.FromName},
		Subject:          msg.Subject,
		Content:          []mailContent{{Type: "text/plain", Value: msg.Text}},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(wire); err != nil {
		return fmt.Errorf("encode mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v3/mail/send", &buf)
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return nil
}
