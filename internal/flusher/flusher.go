// Package flusher flushes a sink on a schedule. The sink itself never
// flushes in the background; a caller that wants records at rest to reach
// disk without waiting for the next write runs a Flusher.
package flusher

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Target is anything that can flush all of its writers.
type Target interface {
	FlushAll()
}

// Flusher calls Target.FlushAll on a cron schedule. Runs never overlap.
type Flusher struct {
	mu      sync.Mutex
	cron    *cron.Cron
	target  Target
	spec    string
	running bool
	runs    atomic.Uint64
}

// New flushes every interval. Intervals under a second are rounded up to
// one second.
func New(target Target, interval time.Duration) (*Flusher, error) {
	if interval <= 0 {
		return nil, errors.Errorf("flush interval must be positive, got %s", interval)
	}
	return NewWithSpec(target, fmt.Sprintf("@every %s", interval))
}

// NewWithSpec flushes on a standard cron spec or descriptor such as
// "@every 5s" or "*/5 * * * *".
func NewWithSpec(target Target, spec string) (*Flusher, error) {
	if target == nil {
		return nil, errors.New("nil flush target")
	}

	f := &Flusher{
		target: target,
		spec:   spec,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DiscardLogger),
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
	}
	if _, err := f.cron.AddFunc(spec, f.flush); err != nil {
		return nil, errors.Wrapf(err, "parse flush schedule %q", spec)
	}
	return f, nil
}

func (f *Flusher) flush() {
	f.target.FlushAll()
	f.runs.Add(1)
}

// Spec returns the schedule.
func (f *Flusher) Spec() string {
	return f.spec
}

// Runs returns how many scheduled flushes have completed.
func (f *Flusher) Runs() uint64 {
	return f.runs.Load()
}

// Start begins flushing. It is a no-op when already started.
func (f *Flusher) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return
	}
	f.running = true
	f.cron.Start()
}

// Stop halts the schedule, waits for a flush in progress and then flushes
// once more so nothing buffered is left behind.
func (f *Flusher) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	f.running = false
	<-f.cron.Stop().Done()
	f.target.FlushAll()
}
