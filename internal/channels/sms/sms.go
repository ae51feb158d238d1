package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pdtracker/pdtracker/internal/gateway"
)

const defaultBaseURL = "https://api.twilio.com"

// Config holds Twilio credentials and the destination number.
type Config struct {
	AccountSID string
	AuthToken  string
	From       string // Twilio number, E.164
	To         string // patient's phone, E.164
	BaseURL    string // overrides the Twilio API host; used by tests
}

// Configured reports whether every field needed to send is set.
func (c Config) Configured() bool {
	return len(c.Missing()) == 0
}

// Missing lists the environment keys that still need a value.
func (c Config) Missing() []string {
	var out []string
	if c.AccountSID == "" {
		out = append(out, "TWILIO_ACCOUNT_SID")
	}
	if c.AuthToken == "" {
		out = append(out, "TWILIO_AUTH_TOKEN")
	}
	if c.From == "" {
		out = append(out, "TWILIO_PHONE_NUMBER")
	}
	if c.To == "" {
		out = append(out, "PD_TRACKER_PHONE")
	}
	return out
}

// Client sends text messages through the Twilio Messages API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a new Twilio client
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Name() string {
	return "sms"
}

type messageResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send posts msg.Content to the configured number and returns the message SID.
func (c *Client) Send(ctx context.Context, msg gateway.Message) (string, error) {
	if !c.cfg.Configured() {
		return "", errors.New("twilio not configured")
	}

	vals := url.Values{}
	vals.Set("From", c.cfg.From)
	vals.Set("To", c.cfg.To)
	vals.Set("Body", msg.Content)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.cfg.BaseURL, url.PathEscape(c.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(vals.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var out messageResponse
	_ = json.Unmarshal(body, &out)

	if resp.StatusCode >= 400 {
		if out.Message != "" {
			return "", fmt.Errorf("twilio error %d: %s", out.Code, out.Message)
		}
		return "", fmt.Errorf("twilio send failed: %s %s", resp.Status, string(body))
	}
	return out.SID, nil
}
