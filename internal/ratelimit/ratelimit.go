package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/deusflow/ainews/internal/logger"
)

// AIRateLimiter caps text-generation requests per provider and in total
// within a rolling window. A zero limit means unlimited.
type AIRateLimiter struct {
	mu         sync.Mutex
	counts     map[string]int
	limits     map[string]int
	totalCount int
	maxTotal   int
	window     time.Duration
	resetTime  time.Time
	now        func() time.Time
}

// NewAIRateLimiter creates a limiter. limits maps provider name to its cap.
func NewAIRateLimiter(limits map[string]int, maxTotal int, window time.Duration) *AIRateLimiter {
	if window <= 0 {
		window = 24 * time.Hour
	}
	l := make(map[string]int, len(limits))
	for k, v := range limits {
		l[k] = v
	}
	rl := &AIRateLimiter{
		counts:   make(map[string]int),
		limits:   l,
		maxTotal: maxTotal,
		window:   window,
		now:      time.Now,
	}
	rl.resetTime = rl.now().Add(window)
	return rl
}

// CanUse reports whether another request to provider fits the budget.
func (rl *AIRateLimiter) CanUse(provider string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.checkReset()
	return rl.allowed(provider) == nil
}

// Use records a request to provider, or returns an error when over budget.
func (rl *AIRateLimiter) Use(provider string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.checkReset()
	if err := rl.allowed(provider); err != nil {
		logger.Warn("AI rate limit reached", "provider", provider, "error", err)
		return err
	}

	rl.counts[provider]++
	rl.totalCount++

	logger.Debug("AI usage",
		"provider", provider,
		"used", rl.counts[provider],
		"limit", rl.limits[provider],
		"total", rl.totalCount,
		"total_limit", rl.maxTotal)
	return nil
}

func (rl *AIRateLimiter) allowed(provider string) error {
	if max := rl.limits[provider]; max > 0 && rl.counts[provider] >= max {
		return fmt.Errorf("%s rate limit exceeded (%d/%d)", provider, rl.counts[provider], max)
	}
	if rl.maxTotal > 0 && rl.totalCount >= rl.maxTotal {
		return fmt.Errorf("total AI rate limit exceeded (%d/%d)", rl.totalCount, rl.maxTotal)
	}
	return nil
}

// GetStats reports usage against each cap. It is published under /metrics.
func (rl *AIRateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	stats := map[string]interface{}{
		"total_used":  rl.totalCount,
		"total_limit": rl.maxTotal,
		"reset_time":  rl.resetTime,
	}
	for provider, n := range rl.counts {
		stats[provider+"_used"] = n
	}
	for provider, n := range rl.limits {
		stats[provider+"_limit"] = n
	}
	return stats
}

// checkReset starts a new window once resetTime is behind us. Callers hold mu.
func (rl *AIRateLimiter) checkReset() {
	if rl.now().After(rl.resetTime) {
		logger.Info("resetting AI rate limiter counters", "total_used", rl.totalCount)
		rl.counts = make(map[string]int)
		rl.totalCount = 0
		rl.resetTime = rl.now().Add(rl.window)
	}
}
