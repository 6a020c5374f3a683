package middleware

import (
	"testing"
	"time"
)

func TestRateLimiterLocksAfterMaxAttempts(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, time.Hour)

	for i := 0; i < 3; i++ {
		allowed, _, _ := rl.Check("10.0.0.1")
		if !allowed {
			t.Fatalf("attempt %d blocked before limit reached", i+1)
		}
		rl.RecordAttempt("10.0.0.1", false)
	}

	allowed, remaining, lockDuration := rl.Check("10.0.0.1")
	if allowed {
		t.Error("Check() allowed after max failed attempts")
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
	if lockDuration <= 0 {
		t.Errorf("lock duration = %v, want > 0", lockDuration)
	}
}

func TestRateLimiterSuccessClearsAttempts(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, time.Hour)

	rl.RecordAttempt("10.0.0.2", false)
	rl.RecordAttempt("10.0.0.2", false)
	rl.RecordAttempt("10.0.0.2", true)

	_, remaining, _ := rl.Check("10.0.0.2")
	if remaining != 3 {
		t.Errorf("remaining after successful login = %d, want 3", remaining)
	}
}

func TestRateLimiterTracksIPsIndependently(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, time.Hour)

	rl.RecordAttempt("10.0.0.3", false)
	rl.RecordAttempt("10.0.0.3", false)

	if allowed, _, _ := rl.Check("10.0.0.3"); allowed {
		t.Error("locked IP still allowed")
	}
	if allowed, _, _ := rl.Check("10.0.0.4"); !allowed {
		t.Error("unrelated IP blocked")
	}
}

func TestRateLimiterCleanupRemovesExpiredLocks(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, 10*time.Millisecond)

	rl.RecordAttempt("10.0.0.5", false)
	if allowed, _, _ := rl.Check("10.0.0.5"); allowed {
		t.Fatal("IP should be locked")
	}

	time.Sleep(20 * time.Millisecond)
	rl.cleanup()

	if allowed, _, _ := rl.Check("10.0.0.5"); !allowed {
		t.Error("IP still locked after lock expiry and cleanup")
	}
}
