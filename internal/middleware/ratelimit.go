package middleware

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dreambot-go/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// MaxMessageRunes is Discord's limit for a regular message.
const MaxMessageRunes = 2000

// maxInboundRunes covers the larger limit granted to boosted accounts.
const maxInboundRunes = 4000

// RateLimiter interface for rate limiting
type RateLimiter interface {
	Allow(userID string) bool
	Reset(userID string)
	Cleanup(maxIdle time.Duration) int
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserRateLimiter implements per-user rate limiting
type UserRateLimiter struct {
	enabled  bool
	limiters map[string]*userLimiter
	mu       sync.RWMutex
	rpm      int
	burst    int
	now      func() time.Time
	logger   *logrus.Logger
	metrics  *Metrics
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg *config.RateLimitConfig, metrics *Metrics, logger *logrus.Logger) *UserRateLimiter {
	if !cfg.Enabled {
		return &UserRateLimiter{enabled: false}
	}

	return &UserRateLimiter{
		enabled:  true,
		limiters: make(map[string]*userLimiter),
		rpm:      cfg.RequestsPerMinute,
		burst:    cfg.Burst,
		now:      time.Now,
		logger:   logger,
		metrics:  metrics,
	}
}

// Allow checks if a user is allowed to make a request
func (r *UserRateLimiter) Allow(userID string) bool {
	if !r.enabled {
		return true
	}

	ul := r.getLimiter(userID)
	now := r.now()
	allowed := ul.limiter.AllowN(now, 1)

	r.mu.Lock()
	ul.lastSeen = now
	r.mu.Unlock()

	if !allowed {
		r.logger.WithFields(logrus.Fields{
			"user_id": userID,
		}).Warn("Rate limit exceeded")
		if r.metrics != nil {
			r.metrics.RecordRateLimitExceeded()
		}
	}

	return allowed
}

// Reset resets the rate limiter for a user
func (r *UserRateLimiter) Reset(userID string) {
	if !r.enabled {
		return
	}

	r.mu.Lock()
	delete(r.limiters, userID)
	r.mu.Unlock()
}

// Cleanup drops limiters idle for longer than maxIdle and returns how many were removed.
func (r *UserRateLimiter) Cleanup(maxIdle time.Duration) int {
	if !r.enabled {
		return 0
	}

	cutoff := r.now().Add(-maxIdle)
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, ul := range r.limiters {
		if ul.lastSeen.Before(cutoff) {
			delete(r.limiters, id)
			removed++
		}
	}
	return removed
}

// getLimiter gets or creates a rate limiter for a user
func (r *UserRateLimiter) getLimiter(userID string) *userLimiter {
	r.mu.RLock()
	ul, exists := r.limiters[userID]
	r.mu.RUnlock()

	if exists {
		return ul
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if ul, exists := r.limiters[userID]; exists {
		return ul
	}

	// Rate per second = RPM / 60
	rps := float64(r.rpm) / 60.0
	ul = &userLimiter{
		limiter:  rate.NewLimiter(rate.Limit(rps), r.burst),
		lastSeen: r.now(),
	}
	r.limiters[userID] = ul

	return ul
}

// SecurityMiddleware provides input and output checks for chat text
type SecurityMiddleware struct {
	logger *logrus.Logger
}

// NewSecurityMiddleware creates security middleware
func NewSecurityMiddleware(logger *logrus.Logger) *SecurityMiddleware {
	return &SecurityMiddleware{
		logger: logger,
	}
}

// ValidateInput rejects text no Discord client could have sent.
func (s *SecurityMiddleware) ValidateInput(text string) error {
	if !utf8.ValidString(text) {
		return fmt.Errorf("message is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(text); n > maxInboundRunes {
		return fmt.Errorf("message too long: %d characters", n)
	}
	return nil
}

var massMentions = strings.NewReplacer("@everyone", "@\u200beveryone", "@here", "@\u200bhere")

// SanitizeOutput defuses mass mentions and clips text to the message limit.
func (s *SecurityMiddleware) SanitizeOutput(text string) string {
	text = massMentions.Replace(text)
	if utf8.RuneCountInString(text) <= MaxMessageRunes {
		return text
	}

	s.logger.WithField("length", utf8.RuneCountInString(text)).Warn("Clipping oversized reply")
	runes := []rune(text)
	return string(runes[:MaxMessageRunes-3]) + "..."
}
