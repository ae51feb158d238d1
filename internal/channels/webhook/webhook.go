package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pdtracker/pdtracker/internal/gateway"
)

type Channel struct {
	URL    string
	client *http.Client
}

func New(url string) *Channel {
	return &Channel{URL: url, client: &http.Client{Timeout: 15 * time.Second}}
}

func (c *Channel) Name() string {
	return "webhook"
}

type payload struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Subject    string `json:"subject,omitempty"`
	Content    string `json:"content"`
	ReminderID int64  `json:"reminder_id,omitempty"`
	SentAt     string `json:"sent_at"`
}

// Send posts the message as JSON. The id is also sent as Idempotency-Key and is
// stable across retries of the same reminder and kind, so receivers can drop
// deliveries they already accepted.
func (c *Channel) Send(ctx context.Context, msg gateway.Message) (string, error) {
	id := deliveryKey(msg)
	body, err := json.Marshal(payload{
		ID:         id,
		Kind:       msg.Kind,
		Subject:    msg.Subject,
		Content:    msg.Content,
		ReminderID: msg.ReminderID,
		SentAt:     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", id)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("webhook failed with status: %d", resp.StatusCode)
	}
	return id, nil
}

// deliveryKey is a name-based UUID of kind and reminder id. Messages not tied to a
// reminder (test sends, summaries) get a random key.
func deliveryKey(msg gateway.Message) string {
	if msg.ReminderID == 0 {
		return uuid.NewString()
	}
	name := fmt.Sprintf("pdtracker:%s:%d", msg.Kind, msg.ReminderID)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
