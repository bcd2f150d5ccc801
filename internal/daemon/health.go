package daemon

import (
	"sort"
	"sync"
	"time"

	"git.home.luguber.info/inful/forpostctl/internal/version"
)

// HealthStatus is the overall daemon health.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck reports nil when its component works.
type HealthCheck func() error

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status    HealthStatus      `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Uptime    float64           `json:"uptime_seconds"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Health aggregates component checks. A daemon that is not running is
// unhealthy; a failing check makes it degraded.
type Health struct {
	mu      sync.RWMutex
	started time.Time
	running bool
	checks  map[string]HealthCheck
	now     func() time.Time
}

// NewHealth returns a Health in the stopped state.
func NewHealth() *Health {
	return &Health{checks: map[string]HealthCheck{}, now: time.Now}
}

// Register adds a named check.
func (h *Health) Register(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// SetRunning flips the running state; the first transition to running starts the uptime clock.
func (h *Health) SetRunning(running bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if running && h.started.IsZero() {
		h.started = h.now()
	}
	h.running = running
}

// Check runs every registered check.
func (h *Health) Check() HealthResponse {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: now.UTC(),
		Version:   version.Version,
	}
	if !h.started.IsZero() {
		resp.Uptime = now.Sub(h.started).Seconds()
	}
	if !h.running {
		resp.Status = HealthStatusUnhealthy
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		resp.Checks = make(map[string]string, len(names))
	}
	for _, name := range names {
		if err := h.checks[name](); err != nil {
			resp.Checks[name] = err.Error()
			if resp.Status == HealthStatusHealthy {
				resp.Status = HealthStatusDegraded
			}
			continue
		}
		resp.Checks[name] = "ok"
	}
	return resp
}
