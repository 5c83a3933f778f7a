package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Drop reasons tracked by the collector.
const (
	DropUnconfigured    = "unconfigured"
	DropDiskGuard       = "disk_guard"
	DropOpenFailed      = "open_failed"
	DropWriteFailed     = "write_failed"
	DropInvalidSeverity = "invalid_severity"
)

// Rotation reasons tracked by the collector.
const (
	RotateSize = "size"
	RotateDay  = "day"
)

// Collector handles metrics collection for the sink. All methods are safe on
// a nil receiver so writers can be built without metrics.
type Collector struct {
	// Records routed by severity (0..4)
	routedBySeverity [5]atomic.Uint64

	recordsWritten atomic.Uint64
	bytesWritten   atomic.Uint64

	droppedByReason sync.Map // map[string]*atomic.Uint64
	rotationsBy     sync.Map // map[string]*atomic.Uint64

	// File operations
	opens          atomic.Uint64
	openFailures   atomic.Uint64
	flushes        atomic.Uint64
	diskFullEvents atomic.Uint64
	writersCreated atomic.Uint64
	filesPruned    atomic.Uint64

	// Error metrics
	errorCount     atomic.Uint64
	errorsBySource sync.Map // map[string]*atomic.Uint64

	// Performance metrics
	writeCount     atomic.Uint64
	totalWriteTime atomic.Int64 // nanoseconds
	maxWriteTime   atomic.Int64 // nanoseconds
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Snapshot is a point-in-time copy of the collector's counters.
type Snapshot struct {
	RoutedBySeverity [5]uint64         `json:"routed_by_severity"`
	RecordsWritten   uint64            `json:"records_written"`
	BytesWritten     uint64            `json:"bytes_written"`
	Dropped          map[string]uint64 `json:"dropped"`
	Rotations        map[string]uint64 `json:"rotations"`
	Opens            uint64            `json:"opens"`
	OpenFailures     uint64            `json:"open_failures"`
	Flushes          uint64            `json:"flushes"`
	DiskFullEvents   uint64            `json:"disk_full_events"`
	WritersCreated   uint64            `json:"writers_created"`
	FilesPruned      uint64            `json:"files_pruned"`
	ErrorCount       uint64            `json:"error_count"`
	ErrorsBySource   map[string]uint64 `json:"errors_by_source"`
	AverageWriteTime time.Duration     `json:"average_write_time"`
	MaxWriteTime     time.Duration     `json:"max_write_time"`
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		Dropped:        make(map[string]uint64),
		Rotations:      make(map[string]uint64),
		ErrorsBySource: make(map[string]uint64),
	}
	if c == nil {
		return s
	}

	for i := range c.routedBySeverity {
		s.RoutedBySeverity[i] = c.routedBySeverity[i].Load()
	}
	s.RecordsWritten = c.recordsWritten.Load()
	s.BytesWritten = c.bytesWritten.Load()
	s.Opens = c.opens.Load()
	s.OpenFailures = c.openFailures.Load()
	s.Flushes = c.flushes.Load()
	s.DiskFullEvents = c.diskFullEvents.Load()
	s.WritersCreated = c.writersCreated.Load()
	s.FilesPruned = c.filesPruned.Load()
	s.ErrorCount = c.errorCount.Load()

	copyCounters(&c.droppedByReason, s.Dropped)
	copyCounters(&c.rotationsBy, s.Rotations)
	copyCounters(&c.errorsBySource, s.ErrorsBySource)

	if n := c.writeCount.Load(); n > 0 {
		s.AverageWriteTime = time.Duration(c.totalWriteTime.Load()) / time.Duration(n)
	}
	s.MaxWriteTime = time.Duration(c.maxWriteTime.Load())

	return s
}

func copyCounters(m *sync.Map, dst map[string]uint64) {
	m.Range(func(key, value interface{}) bool {
		if n := value.(*atomic.Uint64).Load(); n > 0 {
			dst[key.(string)] = n
		}
		return true
	})
}

func addCounter(m *sync.Map, key string) {
	val, _ := m.LoadOrStore(key, &atomic.Uint64{})
	val.(*atomic.Uint64).Add(1)
}

func loadCounter(m *sync.Map, key string) uint64 {
	if val, ok := m.Load(key); ok {
		return val.(*atomic.Uint64).Load()
	}
	return 0
}

// TrackRouted counts a record handed to the sink at the given severity.
func (c *Collector) TrackRouted(severity int) {
	if c == nil || severity < 0 || severity >= len(c.routedBySeverity) {
		return
	}
	c.routedBySeverity[severity].Add(1)
}

// TrackWrite records a payload appended to a file.
func (c *Collector) TrackWrite(bytes int, duration time.Duration) {
	if c == nil {
		return
	}
	c.recordsWritten.Add(1)
	c.bytesWritten.Add(uint64(bytes))
	c.writeCount.Add(1)
	c.totalWriteTime.Add(int64(duration))

	// Update max write time
	for {
		oldMax := c.maxWriteTime.Load()
		if int64(duration) <= oldMax {
			break
		}
		if c.maxWriteTime.CompareAndSwap(oldMax, int64(duration)) {
			break
		}
	}
}

// TrackDropped counts a record that was not written.
func (c *Collector) TrackDropped(reason string) {
	if c == nil {
		return
	}
	addCounter(&c.droppedByReason, reason)
}

// TrackRotation counts a file rotation.
func (c *Collector) TrackRotation(reason string) {
	if c == nil {
		return
	}
	addCounter(&c.rotationsBy, reason)
}

// TrackOpen counts a successful file open.
func (c *Collector) TrackOpen() {
	if c == nil {
		return
	}
	c.opens.Add(1)
}

// TrackOpenFailure counts a failed file open.
func (c *Collector) TrackOpenFailure() {
	if c == nil {
		return
	}
	c.openFailures.Add(1)
}

// TrackFlush counts a flush of a writer.
func (c *Collector) TrackFlush() {
	if c == nil {
		return
	}
	c.flushes.Add(1)
}

// TrackDiskFull counts entries into the disk guard stop state.
func (c *Collector) TrackDiskFull() {
	if c == nil {
		return
	}
	c.diskFullEvents.Add(1)
}

// TrackWriterCreated counts a lazily constructed FileWriter.
func (c *Collector) TrackWriterCreated() {
	if c == nil {
		return
	}
	c.writersCreated.Add(1)
}

// TrackPruned counts log files removed by retention.
func (c *Collector) TrackPruned(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.filesPruned.Add(uint64(n))
}

// TrackError increments the error counter and tracks by source.
func (c *Collector) TrackError(source string) {
	if c == nil {
		return
	}
	c.errorCount.Add(1)
	addCounter(&c.errorsBySource, source)
}

// DroppedCount returns the number of records dropped for a reason.
func (c *Collector) DroppedCount(reason string) uint64 {
	if c == nil {
		return 0
	}
	return loadCounter(&c.droppedByReason, reason)
}

// RotationCount returns the number of rotations for a reason.
func (c *Collector) RotationCount(reason string) uint64 {
	if c == nil {
		return 0
	}
	return loadCounter(&c.rotationsBy, reason)
}

// WritersCreated returns how many writers have been constructed.
func (c *Collector) WritersCreated() uint64 {
	if c == nil {
		return 0
	}
	return c.writersCreated.Load()
}

// Reset zeroes every counter.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	for i := range c.routedBySeverity {
		c.routedBySeverity[i].Store(0)
	}
	c.recordsWritten.Store(0)
	c.bytesWritten.Store(0)
	c.opens.Store(0)
	c.openFailures.Store(0)
	c.flushes.Store(0)
	c.diskFullEvents.Store(0)
	c.writersCreated.Store(0)
	c.filesPruned.Store(0)
	c.errorCount.Store(0)
	c.writeCount.Store(0)
	c.totalWriteTime.Store(0)
	c.maxWriteTime.Store(0)

	for _, m := range []*sync.Map{&c.droppedByReason, &c.rotationsBy, &c.errorsBySource} {
		m.Range(func(_, value interface{}) bool {
			value.(*atomic.Uint64).Store(0)
			return true
		})
	}
}
