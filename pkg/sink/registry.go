package sink

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wayneeseguin/logsink/internal/metrics"
	"github.com/wayneeseguin/logsink/pkg/backends"
	"github.com/wayneeseguin/logsink/pkg/types"
)

// Registry maps routing keys to their FileWriters. Writers are created on
// first use and live until Close. Both tables may be populated when the mode
// is toggled; only the active one is consulted by Route and FlushAll.
type Registry struct {
	mu         sync.RWMutex
	cfg        Config
	severity   [types.NumSeverities]*backends.FileWriter
	categories map[string]*backends.FileWriter
	retention  backends.Retention
}

// NewRegistry creates an empty registry. cfg must already be validated; the
// registry keeps its own copy. retention may be nil.
func NewRegistry(cfg *Config, retention backends.Retention) *Registry {
	return &Registry{
		cfg:        *cfg,
		categories: make(map[string]*backends.FileWriter),
		retention:  retention,
	}
}

// Resolve returns the writer for key, creating it on first use. Concurrent
// first calls for one key get the same writer. Returns nil for an invalid
// severity.
func (r *Registry) Resolve(key types.RoutingKey) *backends.FileWriter {
	if key.Kind() == types.KindSeverity && !key.Severity().Valid() {
		return nil
	}

	r.mu.RLock()
	w := r.lookup(key)
	r.mu.RUnlock()
	if w != nil {
		return w
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if w := r.lookup(key); w != nil {
		return w
	}

	w = backends.NewFileWriter(r.writerConfig(key))
	if key.Kind() == types.KindSeverity {
		r.severity[key.Severity()] = w
	} else {
		r.categories[key.Category()] = w
	}
	r.cfg.Metrics.TrackWriterCreated()
	return w
}

func (r *Registry) lookup(key types.RoutingKey) *backends.FileWriter {
	if key.Kind() == types.KindSeverity {
		return r.severity[key.Severity()]
	}
	return r.categories[key.Category()]
}

// writerConfig binds a new writer to the current settings. Severity writers
// take their severity's directory, category writers the shared category base.
func (r *Registry) writerConfig(key types.RoutingKey) backends.WriterConfig {
	base := r.cfg.CategoryDir
	if key.Kind() == types.KindSeverity {
		base = r.cfg.SeverityDirs[key.Severity()]
	}
	return backends.WriterConfig{
		Key:             key,
		Base:            base,
		MaxSizeBytes:    r.cfg.maxSizeBytes(),
		BufferInterval:  r.cfg.bufferInterval(),
		IncludeFileLine: r.cfg.IncludeFileLine,
		SyncOnFlush:     r.cfg.SyncOnFlush,
		MinFreeBytes:    r.cfg.MinFreeBytes,
		Probe:           r.cfg.DiskProbe,
		Clock:           r.cfg.Clock,
		Metrics:         r.cfg.Metrics,
		ErrorHandler:    r.cfg.ErrorHandler,
		Retention:       r.retention,
	}
}

// Route writes payload to the writer selected by the active mode. The write
// is flushed when flushHint or FlushImmediately is set.
func (r *Registry) Route(sev types.Severity, category string, payload []byte, flushHint bool) {
	r.cfg.Metrics.TrackRouted(int(sev))
	if !sev.Valid() {
		r.cfg.Metrics.TrackDropped(metrics.DropInvalidSeverity)
		return
	}

	r.mu.RLock()
	categoryMode := r.cfg.CategoryMode
	force := flushHint || r.cfg.FlushImmediately
	r.mu.RUnlock()

	key := types.SeverityKey(sev)
	if categoryMode {
		key = types.CategoryKey(category)
	}
	r.Resolve(key).Write(force, payload)
}

// FlushAll flushes every writer of the active table.
func (r *Registry) FlushAll() {
	for _, w := range r.activeWriters() {
		w.Flush()
	}
}

func (r *Registry) activeWriters() []*backends.FileWriter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var writers []*backends.FileWriter
	if r.cfg.CategoryMode {
		for _, w := range r.categories {
			writers = append(writers, w)
		}
		return writers
	}
	for _, w := range r.severity {
		if w != nil {
			writers = append(writers, w)
		}
	}
	return writers
}

func (r *Registry) allWriters() []*backends.FileWriter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collectWriters()
}

func (r *Registry) collectWriters() []*backends.FileWriter {
	writers := make([]*backends.FileWriter, 0, len(r.categories)+types.NumSeverities)
	for _, w := range r.severity {
		if w != nil {
			writers = append(writers, w)
		}
	}
	for _, w := range r.categories {
		writers = append(writers, w)
	}
	return writers
}

// SetSeverityDestination changes the base directory of one severity. An
// existing writer picks it up when it next opens a file.
func (r *Registry) SetSeverityDestination(sev types.Severity, dir string) error {
	if !sev.Valid() {
		return invalidConfig("unknown severity %d", int(sev))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.SeverityDirs[sev] = dir
	if w := r.severity[sev]; w != nil {
		w.SetBase(dir)
	}
	return nil
}

// SetCategoryDestination changes the category base directory for new and
// existing category writers.
func (r *Registry) SetCategoryDestination(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.CategoryDir = dir
	for _, w := range r.categories {
		w.SetBase(dir)
	}
}

// SetCategoryMode selects which table Route and FlushAll use.
func (r *Registry) SetCategoryMode(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.CategoryMode = enabled
}

// CategoryMode reports the active routing mode.
func (r *Registry) CategoryMode() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.CategoryMode
}

// setWriterDefaults updates the settings later writers are created with.
func (r *Registry) setWriterDefaults(update func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	update(&r.cfg)
}

// Stats returns the state of every writer, sorted by key.
func (r *Registry) Stats() []backends.Stats {
	writers := r.allWriters()
	stats := make([]backends.Stats, 0, len(writers))
	for _, w := range writers {
		stats = append(stats, w.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Key < stats[j].Key })
	return stats
}

// Close flushes and closes every writer in both tables and empties them.
func (r *Registry) Close() error {
	r.mu.Lock()
	writers := r.collectWriters()
	r.severity = [types.NumSeverities]*backends.FileWriter{}
	r.categories = make(map[string]*backends.FileWriter)
	r.mu.Unlock()

	var errs []error
	for _, w := range writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
