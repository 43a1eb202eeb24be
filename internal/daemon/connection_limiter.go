package daemon

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// ConnectionLimiter bounds how many sessions run at once and how fast new
// ones are admitted. It is checked on the accept path before a handler is
// started, so it must never block.
type ConnectionLimiter struct {
	maxConnections     int32
	currentConnections atomic.Int32
	connectionsPerSec  *rate.Limiter
}

// ConnectionLimiterConfig holds configuration for the connection limiter
type ConnectionLimiterConfig struct {
	MaxConnections    int32   // Max concurrent sessions
	ConnectionsPerSec float64 // New sessions per second
	ConnectionBurst   int     // Burst allowance
}

// DefaultConnectionLimiterConfig returns defaults sized for a single user
func DefaultConnectionLimiterConfig() *ConnectionLimiterConfig {
	return &ConnectionLimiterConfig{
		MaxConnections:    64,
		ConnectionsPerSec: 50,
		ConnectionBurst:   100,
	}
}

// NewConnectionLimiter creates a new connection limiter
func NewConnectionLimiter(config *ConnectionLimiterConfig) *ConnectionLimiter {
	if config == nil {
		config = DefaultConnectionLimiterConfig()
	}

	return &ConnectionLimiter{
		maxConnections:    config.MaxConnections,
		connectionsPerSec: rate.NewLimiter(rate.Limit(config.ConnectionsPerSec), config.ConnectionBurst),
	}
}

// Allow admits a new session or explains why it was refused. Every nil
// return must be paired with Release.
func (cl *ConnectionLimiter) Allow() error {
	if cl.currentConnections.Load() >= cl.maxConnections {
		return fmt.Errorf("max connections reached (%d)", cl.maxConnections)
	}

	if !cl.connectionsPerSec.Allow() {
		return fmt.Errorf("connection rate exceeded")
	}

	cl.currentConnections.Add(1)
	return nil
}

// Release marks an admitted session as finished
func (cl *ConnectionLimiter) Release() {
	cl.currentConnections.Add(-1)
}

// Stats returns current connection limiter statistics
func (cl *ConnectionLimiter) Stats() ConnectionLimiterStats {
	return ConnectionLimiterStats{
		CurrentConnections: cl.currentConnections.Load(),
		MaxConnections:     cl.maxConnections,
	}
}

// ConnectionLimiterStats holds connection limiter statistics
type ConnectionLimiterStats struct {
	CurrentConnections int32 `json:"current_connections"`
	MaxConnections     int32 `json:"max_connections"`
}
