package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pdtracker/pdtracker/internal/logging"
)

// ErrGatewayFailure is returned when a message could not be delivered on any channel.
var ErrGatewayFailure = errors.New("notification gateway failure")

// Message is one outbound notification.
type Message struct {
	Kind       string // "reminder", "followup", "test", "summary"
	Subject    string // used by channels that have one (email)
	Content    string
	ReminderID int64 // 0 when the message is not tied to a reminder
}

// Channel is an outbound notification medium.
type Channel interface {
	// Name returns the unique name of the channel ("sms", "email", ...).
	Name() string
	// Send delivers msg and returns a provider message id when the provider gives one.
	Send(ctx context.Context, msg Message) (string, error)
}

// Result describes a fan-out send.
type Result struct {
	// ID is the provider id of the first channel that accepted the message.
	ID        string
	Delivered []string
	Failed    map[string]error
}

// Gateway fans messages out to every registered channel.
type Gateway struct {
	channels map[string]Channel
	log      logging.Logger
	mu       sync.RWMutex
}

// New creates a new Gateway
func New(log logging.Logger) *Gateway {
	return &Gateway{
		channels: make(map[string]Channel),
		log:      log,
	}
}

// Register adds a channel to the gateway, replacing one with the same name.
func (g *Gateway) Register(c Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.Name()] = c
}

// Send delivers msg on every channel. It succeeds when at least one channel accepts
// the message; otherwise the error wraps ErrGatewayFailure and every channel error.
func (g *Gateway) Send(ctx context.Context, msg Message) (Result, error) {
	g.mu.RLock()
	names := g.sortedNames()
	chans := make([]Channel, 0, len(names))
	for _, n := range names {
		chans = append(chans, g.channels[n])
	}
	g.mu.RUnlock()

	res := Result{Failed: map[string]error{}}
	if len(chans) == 0 {
		return res, fmt.Errorf("%w: no channels configured", ErrGatewayFailure)
	}

	for _, ch := range chans {
		id, err := ch.Send(ctx, msg)
		if err != nil {
			g.log.Warnf("%s send failed for %s message: %v", ch.Name(), msg.Kind, err)
			res.Failed[ch.Name()] = err
			continue
		}
		if res.ID == "" {
			res.ID = id
		}
		res.Delivered = append(res.Delivered, ch.Name())
	}

	if len(res.Delivered) == 0 {
		errs := make([]error, 0, len(res.Failed))
		for _, n := range names {
			errs = append(errs, fmt.Errorf("%s: %w", n, res.Failed[n]))
		}
		return res, fmt.Errorf("%w: %w", ErrGatewayFailure, errors.Join(errs...))
	}
	g.log.Debugf("%s message delivered via %s", msg.Kind, strings.Join(res.Delivered, ", "))
	return res, nil
}

// Broadcast sends a message via the specified channel only.
func (g *Gateway) Broadcast(ctx context.Context, channelName string, msg Message) (string, error) {
	g.mu.RLock()
	ch, ok := g.channels[channelName]
	g.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: channel %s not found", ErrGatewayFailure, channelName)
	}
	id, err := ch.Send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrGatewayFailure, channelName, err)
	}
	return id, nil
}

// caller holds g.mu
func (g *Gateway) sortedNames() []string {
	names := make([]string, 0, len(g.channels))
	for name := range g.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
