// Package health aggregates component checks for the status endpoint.
package health

import (
	"sort"
	"sync"
	"time"
)

// Component states, from best to worst.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// ComponentHealth is the state of one component (database, gateway, redis).
type ComponentHealth struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LastOK    time.Time `json:"last_ok"`
	LastError time.Time `json:"last_error,omitempty"`
}

// HealthReport is the combined view; Status is the worst component state.
type HealthReport struct {
	Timestamp  time.Time                  `json:"timestamp"`
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Errors     []LogEntry                 `json:"recent_errors,omitempty"`
}

// LogEntry is a failed delivery attempt surfaced alongside the report.
type LogEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Component string    `json:"component"` // reminder, followup
	Message   string    `json:"message"`
}

type HealthChecker interface {
	HealthCheck() ComponentHealth
}

// CheckerFunc adapts a function to HealthChecker.
type CheckerFunc func() ComponentHealth

func (f CheckerFunc) HealthCheck() ComponentHealth { return f() }

// Registry holds named checkers.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

func NewRegistry() *Registry {
	return &Registry{checkers: make(map[string]HealthChecker)}
}

// Register adds or replaces the checker for name.
func (r *Registry) Register(name string, checker HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
}

// Names returns the registered component names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checkers))
	for n := range r.checkers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Check runs every checker concurrently; a slow Redis ping does not hold up the database check.
func (r *Registry) Check() HealthReport {
	r.mu.RLock()
	checkers := make(map[string]HealthChecker, len(r.checkers))
	for name, c := range r.checkers {
		checkers[name] = c
	}
	r.mu.RUnlock()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	components := make(map[string]ComponentHealth, len(checkers))
	for name, c := range checkers {
		wg.Add(1)
		go func(name string, c HealthChecker) {
			defer wg.Done()
			h := c.HealthCheck()
			mu.Lock()
			components[name] = h
			mu.Unlock()
		}(name, c)
	}
	wg.Wait()

	return HealthReport{
		Timestamp:  time.Now(),
		Status:     overall(components),
		Components: components,
	}
}

// GetStatus returns the overall status only.
func (r *Registry) GetStatus() string {
	return r.Check().Status
}

func overall(components map[string]ComponentHealth) string {
	status := StatusOK
	for _, c := range components {
		switch c.Status {
		case StatusError:
			return StatusError
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}
