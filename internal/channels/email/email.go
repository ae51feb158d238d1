package email

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/pdtracker/pdtracker/internal/gateway"
)

// Config holds SMTP settings for the email channel.
type Config struct {
	Host     string
	Port     int
	Username string // sender address, also the SMTP login
	Password string
	To       string
}

// Configured reports whether the channel can send.
func (c Config) Configured() bool {
	return c.Username != "" && c.Password != "" && c.To != ""
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Channel delivers notifications as plain-text email.
type Channel struct {
	cfg    Config
	dialer sender
}

// New creates an email channel. Host defaults to smtp.gmail.com and Port to 587.
func New(cfg Config) (*Channel, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("SMTP credentials not configured")
	}
	if cfg.Host == "" {
		cfg.Host = "smtp.gmail.com"
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid SMTP port %d", cfg.Port)
	}
	return &Channel{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}, nil
}

func (c *Channel) Name() string {
	return "email"
}

func (c *Channel) Send(ctx context.Context, msg gateway.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if msg.Content == "" {
		return "", errors.New("empty message")
	}
	subject := msg.Subject
	if subject == "" {
		subject = "PD Tracker"
	}

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("PD Tracker <%s>", c.cfg.Username))
	m.SetHeader("To", c.cfg.To)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", msg.Content)

	if err := c.dialer.DialAndSend(m); err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	return "", nil
}
