package daemon

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"zowe.dev/go/zowe/internal/protocol"
)

// ErrRateLimited is returned when a request exceeds a rate limit
var ErrRateLimited = errors.New("rate limit exceeded")

// RequestLimitConfig defines rate limits for client requests
type RequestLimitConfig struct {
	// Per-session limits
	SessionRequestsPerSecond float64
	SessionBurst             int

	// Per-method limits, applied per session
	MethodLimits map[string]MethodLimit

	// Global limits across all sessions
	GlobalRequestsPerSecond float64
	GlobalBurst             int
}

// MethodLimit defines the rate limit for a single method
type MethodLimit struct {
	PerMinute int
	Burst     int
}

// DefaultRequestLimitConfig returns sensible defaults
func DefaultRequestLimitConfig() *RequestLimitConfig {
	return &RequestLimitConfig{
		SessionRequestsPerSecond: 50,
		SessionBurst:             100,

		// exec is only bounded by the session limit
		MethodLimits: map[string]MethodLimit{
			protocol.MethodPing:     {PerMinute: 600, Burst: 20},
			protocol.MethodStatus:   {PerMinute: 120, Burst: 10},
			protocol.MethodLogs:     {PerMinute: 120, Burst: 10},
			protocol.MethodShutdown: {PerMinute: 5, Burst: 2},
		},

		GlobalRequestsPerSecond: 500,
		GlobalBurst:             1000,
	}
}

// RequestLimiter rate limits requests by session and method
type RequestLimiter struct {
	config *RequestLimitConfig

	globalLimiter *rate.Limiter

	// session id -> *rate.Limiter
	sessionLimiters sync.Map

	// "session:method" -> *rate.Limiter
	methodLimiters sync.Map

	mu              sync.RWMutex
	dropped         int64
	droppedByMethod map[string]int64
}

// NewRequestLimiter creates a request limiter; nil config uses defaults
func NewRequestLimiter(config *RequestLimitConfig) *RequestLimiter {
	if config == nil {
		config = DefaultRequestLimitConfig()
	}

	return &RequestLimiter{
		config:          config,
		globalLimiter:   rate.NewLimiter(rate.Limit(config.GlobalRequestsPerSecond), config.GlobalBurst),
		droppedByMethod: make(map[string]int64),
	}
}

// Allow checks whether a request from session may proceed
func (rl *RequestLimiter) Allow(session, method string) error {
	if !rl.globalLimiter.Allow() {
		rl.recordDrop(method)
		return fmt.Errorf("global %w", ErrRateLimited)
	}

	if !rl.sessionLimiter(session).Allow() {
		rl.recordDrop(method)
		return fmt.Errorf("session %w", ErrRateLimited)
	}

	if limiter := rl.methodLimiter(session, method); limiter != nil && !limiter.Allow() {
		rl.recordDrop(method)
		return fmt.Errorf("method %s %w", method, ErrRateLimited)
	}

	return nil
}

func (rl *RequestLimiter) sessionLimiter(session string) *rate.Limiter {
	if limiter, ok := rl.sessionLimiters.Load(session); ok {
		return limiter.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(rate.Limit(rl.config.SessionRequestsPerSecond), rl.config.SessionBurst)
	actual, _ := rl.sessionLimiters.LoadOrStore(session, limiter)
	return actual.(*rate.Limiter)
}

func (rl *RequestLimiter) methodLimiter(session, method string) *rate.Limiter {
	limit, exists := rl.config.MethodLimits[method]
	if !exists {
		return nil
	}

	key := session + ":" + method
	if limiter, ok := rl.methodLimiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	perSecond := float64(limit.PerMinute) / 60.0
	limiter := rate.NewLimiter(rate.Limit(perSecond), limit.Burst)
	actual, _ := rl.methodLimiters.LoadOrStore(key, limiter)
	return actual.(*rate.Limiter)
}

func (rl *RequestLimiter) recordDrop(method string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.dropped++
	rl.droppedByMethod[method]++
}

// RemoveSession drops the limiters of a finished session
func (rl *RequestLimiter) RemoveSession(session string) {
	rl.sessionLimiters.Delete(session)
	for method := range rl.config.MethodLimits {
		rl.methodLimiters.Delete(session + ":" + method)
	}
}

// RequestLimitStats holds rate limiting statistics
type RequestLimitStats struct {
	TotalDropped    int64            `json:"total_dropped"`
	DroppedByMethod map[string]int64 `json:"dropped_by_method,omitempty"`
}

// Stats returns rate limiting statistics
func (rl *RequestLimiter) Stats() RequestLimitStats {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	stats := RequestLimitStats{
		TotalDropped:    rl.dropped,
		DroppedByMethod: make(map[string]int64, len(rl.droppedByMethod)),
	}
	for k, v := range rl.droppedByMethod {
		stats.DroppedByMethod[k] = v
	}
	return stats
}
