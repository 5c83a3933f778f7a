package backends

import (
	"errors"
	"math"
	"strings"
	"time"
)

// DiskGuard is the stop-writing state of a FileWriter. Once tripped, writes
// are dropped until the retry-after time passes; the first write after that
// clears the state and is attempted normally.
type DiskGuard struct {
	stopped    bool
	retryAfter time.Time
}

// Trip enters the stop state until now+cooldown.
func (g *DiskGuard) Trip(now time.Time, cooldown time.Duration) {
	g.stopped = true
	g.retryAfter = now.Add(cooldown)
}

// Allow reports whether a write may proceed at now. An elapsed cooldown
// clears the stop state.
func (g *DiskGuard) Allow(now time.Time) bool {
	if !g.stopped {
		return true
	}
	if now.Before(g.retryAfter) {
		return false
	}
	g.stopped = false
	g.retryAfter = time.Time{}
	return true
}

// Stopped reports whether the guard is in the stop state.
func (g *DiskGuard) Stopped() bool {
	return g.stopped
}

// RetryAfter returns when the stop state ends. Zero when not stopped.
func (g *DiskGuard) RetryAfter() time.Time {
	return g.retryAfter
}

// DiskProbe reports the bytes available to unprivileged writers on the
// filesystem holding dir.
type DiskProbe interface {
	FreeBytes(dir string) (uint64, error)
}

// NopProbe never reports a shortage.
type NopProbe struct{}

// FreeBytes implements DiskProbe.
func (NopProbe) FreeBytes(string) (uint64, error) {
	return math.MaxUint64, nil
}

// isDiskFullError checks if an error indicates disk is full
func isDiskFullError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range diskFullErrnos {
		if errors.Is(err, target) {
			return true
		}
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "enospc") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "quota exceeded")
}
