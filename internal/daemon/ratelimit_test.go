package daemon

import (
	"errors"
	"testing"

	"zowe.dev/go/zowe/internal/protocol"
)

func TestRequestLimiterMethodLimit(t *testing.T) {
	rl := NewRequestLimiter(nil)

	// Shutdown allows a burst of 2 per session
	for i := 0; i < 2; i++ {
		if err := rl.Allow("s1", protocol.MethodShutdown); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	err := rl.Allow("s1", protocol.MethodShutdown)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// Another session has its own budget
	if err := rl.Allow("s2", protocol.MethodShutdown); err != nil {
		t.Errorf("other session: %v", err)
	}

	stats := rl.Stats()
	if stats.TotalDropped != 1 || stats.DroppedByMethod[protocol.MethodShutdown] != 1 {
		t.Errorf("stats: got %+v", stats)
	}
}

func TestRequestLimiterSessionLimit(t *testing.T) {
	rl := NewRequestLimiter(&RequestLimitConfig{
		SessionRequestsPerSecond: 0.001,
		SessionBurst:             3,
		GlobalRequestsPerSecond:  1000,
		GlobalBurst:              1000,
	})

	for i := 0; i < 3; i++ {
		if err := rl.Allow("s1", protocol.MethodExec); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if err := rl.Allow("s1", protocol.MethodExec); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected session limit, got %v", err)
	}

	// A removed session starts over
	rl.RemoveSession("s1")
	if err := rl.Allow("s1", protocol.MethodExec); err != nil {
		t.Errorf("after RemoveSession: %v", err)
	}
}

func TestRequestLimiterGlobalLimit(t *testing.T) {
	rl := NewRequestLimiter(&RequestLimitConfig{
		SessionRequestsPerSecond: 1000,
		SessionBurst:             1000,
		GlobalRequestsPerSecond:  0.001,
		GlobalBurst:              2,
	})

	rl.Allow("a", protocol.MethodExec)
	rl.Allow("b", protocol.MethodExec)
	if err := rl.Allow("c", protocol.MethodExec); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected global limit, got %v", err)
	}
}
