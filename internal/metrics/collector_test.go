package metrics

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c == nil {
		t.Fatal("NewCollector() returned nil")
	}

	s := c.Snapshot()
	if s.RecordsWritten != 0 || s.ErrorCount != 0 {
		t.Errorf("Expected zeroed snapshot, got %+v", s)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.TrackRouted(1)
	c.TrackWrite(10, time.Millisecond)
	c.TrackDropped(DropUnconfigured)
	c.TrackRotation(RotateSize)
	c.TrackError("open")
	c.Reset()

	if got := c.DroppedCount(DropUnconfigured); got != 0 {
		t.Errorf("DroppedCount on nil collector = %d, want 0", got)
	}
	if s := c.Snapshot(); s.Dropped == nil {
		t.Error("Snapshot on nil collector should return initialized maps")
	}
}

func TestTrackCounters(t *testing.T) {
	c := NewCollector()

	tests := []struct {
		name  string
		track func()
		check func(Snapshot) uint64
		want  uint64
	}{
		{"routed info", func() { c.TrackRouted(1) }, func(s Snapshot) uint64 { return s.RoutedBySeverity[1] }, 3},
		{"routed out of range ignored", func() { c.TrackRouted(9) }, func(s Snapshot) uint64 { return s.RoutedBySeverity[4] }, 0},
		{"dropped", func() { c.TrackDropped(DropDiskGuard) }, func(s Snapshot) uint64 { return s.Dropped[DropDiskGuard] }, 3},
		{"rotations", func() { c.TrackRotation(RotateDay) }, func(s Snapshot) uint64 { return s.Rotations[RotateDay] }, 3},
		{"flushes", c.TrackFlush, func(s Snapshot) uint64 { return s.Flushes }, 3},
		{"writers", c.TrackWriterCreated, func(s Snapshot) uint64 { return s.WritersCreated }, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				tt.track()
			}
			if got := tt.check(c.Snapshot()); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTrackWriteConcurrent(t *testing.T) {
	c := NewCollector()

	const goroutines = 10
	const writes = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < writes; j++ {
				c.TrackWrite(10, time.Duration(id+1)*time.Microsecond)
			}
		}(i)
	}
	wg.Wait()

	s := c.Snapshot()
	if s.RecordsWritten != goroutines*writes {
		t.Errorf("RecordsWritten = %d, want %d", s.RecordsWritten, goroutines*writes)
	}
	if s.BytesWritten != goroutines*writes*10 {
		t.Errorf("BytesWritten = %d, want %d", s.BytesWritten, goroutines*writes*10)
	}
	if s.MaxWriteTime != goroutines*time.Microsecond {
		t.Errorf("MaxWriteTime = %v, want %v", s.MaxWriteTime, goroutines*time.Microsecond)
	}
}

func TestReset(t *testing.T) {
	c := NewCollector()
	c.TrackWrite(5, time.Millisecond)
	c.TrackDropped(DropOpenFailed)
	c.TrackError("write")
	c.Reset()

	s := c.Snapshot()
	if s.RecordsWritten != 0 || len(s.Dropped) != 0 || s.ErrorCount != 0 {
		t.Errorf("Expected reset snapshot, got %+v", s)
	}
}

func TestPrometheusCollector(t *testing.T) {
	c := NewCollector()
	c.TrackRouted(3)
	c.TrackRouted(3)
	c.TrackDropped(DropUnconfigured)

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(NewPrometheusCollector(c)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	expected := `
# HELP logsink_records_dropped_total Records not written
# TYPE logsink_records_dropped_total counter
logsink_records_dropped_total{reason="unconfigured"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "logsink_records_dropped_total"); err != nil {
		t.Error(err)
	}

	if n := testutil.CollectAndCount(NewPrometheusCollector(c), "logsink_records_routed_total"); n != 5 {
		t.Errorf("routed series = %d, want 5", n)
	}
}
