package gateway

import (
	"strings"
	"time"

	"github.com/pdtracker/pdtracker/internal/health"
)

// HealthCheck is an error with no channels: every reminder would stay pending.
func (g *Gateway) HealthCheck() health.ComponentHealth {
	names := g.GetChannelNames()
	if len(names) == 0 {
		return health.ComponentHealth{
			Name:      "gateway",
			Status:    "error",
			Message:   "no channels registered",
			LastError: time.Now(),
		}
	}
	return health.ComponentHealth{
		Name:    "gateway",
		Status:  "ok",
		Message: "channels: " + strings.Join(names, ", "),
		LastOK:  time.Now(),
	}
}

// GetChannelNames lists registered channels in delivery order.
func (g *Gateway) GetChannelNames() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sortedNames()
}
