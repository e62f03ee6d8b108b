package tasks

import (
	"context"
	"time"

	"github.com/dreambot-go/internal/middleware"
	"github.com/sirupsen/logrus"
)

const (
	maintenanceInterval = 5 * time.Minute
	limiterIdleAfter    = time.Hour
)

// UserCounter reports how many users have conversational memory.
type UserCounter interface {
	TrackedUsers() int
}

// Maintenance refreshes gauges and drops idle rate limiters.
type Maintenance struct {
	users    UserCounter
	limiter  middleware.RateLimiter
	interval time.Duration
	metrics  *middleware.Metrics
	logger   *logrus.Logger
}

// NewMaintenance creates the housekeeping task.
func NewMaintenance(users UserCounter, limiter middleware.RateLimiter, metrics *middleware.Metrics, logger *logrus.Logger) *Maintenance {
	return &Maintenance{
		users:    users,
		limiter:  limiter,
		interval: maintenanceInterval,
		metrics:  metrics,
		logger:   logger,
	}
}

// RunOnce performs a single housekeeping pass.
func (m *Maintenance) RunOnce() {
	tracked := m.users.TrackedUsers()
	m.metrics.SetTrackedUsers(tracked)

	removed := m.limiter.Cleanup(limiterIdleAfter)
	m.logger.WithFields(logrus.Fields{
		"tracked_users":    tracked,
		"limiters_removed": removed,
	}).Debug("Maintenance pass complete")
}

// Run performs housekeeping once per interval until ctx is done.
func (m *Maintenance) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.RunOnce()
		}
	}
}
