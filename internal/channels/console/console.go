package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/pdtracker/pdtracker/internal/gateway"
)

// Channel prints notifications to a terminal. Used in development and when no
// real channel is configured for test-notify.
type Channel struct {
	out io.Writer
	seq atomic.Int64
}

func New() *Channel {
	return NewWriter(os.Stdout)
}

func NewWriter(w io.Writer) *Channel {
	return &Channel{out: w}
}

func (c *Channel) Name() string {
	return "console"
}

func (c *Channel) Send(ctx context.Context, msg gateway.Message) (string, error) {
	n := c.seq.Add(1)
	if _, err := fmt.Fprintf(c.out, "[%s] %s: %s\n", time.Now().Format("15:04:05"), msg.Kind, msg.Content); err != nil {
		return "", err
	}
	return fmt.Sprintf("console-%d", n), nil
}
