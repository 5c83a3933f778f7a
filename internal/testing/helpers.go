// Package testing holds helpers shared by the package tests: a settable
// clock, log directory inspection and the switch between quick and slow
// runs.
package testing

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"
)

// Quick returns true when slow tests (real schedules, wall-clock waits)
// should be skipped: with -short or LOGSINK_QUICK_TESTS=true.
func Quick() bool {
	if os.Getenv("LOGSINK_QUICK_TESTS") == "true" {
		return true
	}
	return testing.Short()
}

// SkipIfQuick skips a slow test in quick mode.
func SkipIfQuick(t *testing.T, message ...string) {
	t.Helper()
	if Quick() {
		msg := "Skipping slow test in quick mode"
		if len(message) > 0 {
			msg = message[0]
		}
		t.Skip(msg)
	}
}

// Clock is a manually advanced time source, safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current time. Pass c.Now wherever a clock func is taken.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Files returns the sorted names of the regular files in dir, or nil when
// dir does not exist.
func Files(t testing.TB, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("ReadDir(%s) failed: %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// ReadSingle returns the content of the only file in dir and fails the test
// when there is not exactly one.
func ReadSingle(t testing.TB, dir string) string {
	t.Helper()
	names := Files(t, dir)
	if len(names) != 1 {
		t.Fatalf("expected one file in %s, got %v", dir, names)
	}
	data, err := os.ReadFile(filepath.Join(dir, names[0]))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	return string(data)
}
