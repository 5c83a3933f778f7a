package backends

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/wayneeseguin/logsink/internal/metrics"
	"github.com/wayneeseguin/logsink/pkg/types"
)

// DefaultBufferSize for file operations
const DefaultBufferSize = 32 * 1024

// FlushThresholdBytes forces a flush once this many bytes are buffered.
const FlushThresholdBytes = 1000000

// FileTimeFormat is the timestamp prefix of every log file name.
const FileTimeFormat = "20060102-150405"

// maxNameCollisions bounds the ".<n>" suffixes tried when several files are
// opened for one key within the same second.
const maxNameCollisions = 1000

// Clock returns the current time.
type Clock func() time.Time

// Retention prunes a routing directory after a new file is opened in it.
type Retention interface {
	Prune(dir string) (int, error)
}

// WriterConfig holds the settings a FileWriter is built with. Only the base
// directory may change afterwards (see SetBase).
type WriterConfig struct {
	Key             types.RoutingKey
	Base            string
	MaxSizeBytes    int64
	BufferInterval  time.Duration
	IncludeFileLine bool
	SyncOnFlush     bool

	// MinFreeBytes trips the disk guard when Probe reports less free space
	// than this at open or flush. Zero disables probing.
	MinFreeBytes uint64
	Probe        DiskProbe

	Clock        Clock
	Metrics      *metrics.Collector
	ErrorHandler types.ErrorHandler
	Retention    Retention
}

// Stats is a point-in-time view of a FileWriter.
type Stats struct {
	Key        string    `json:"key"`
	Base       string    `json:"base"`
	Path       string    `json:"path"`
	Length     int64     `json:"length"`
	SinceFlush int64     `json:"since_flush"`
	NextFlush  time.Time `json:"next_flush"`
	Stopped    bool      `json:"stopped"`
	RetryAfter time.Time `json:"retry_after"`
}

// FileWriter owns the on-disk file of one routing key. All methods are safe
// for concurrent use; one mutex covers rotation, open, header, append and
// flush so payloads of concurrent writers never interleave.
type FileWriter struct {
	mu  sync.Mutex
	cfg WriterConfig

	file   *os.File
	writer *bufio.Writer
	lock   *flock.Flock
	path   string

	length     int64
	sinceFlush int64
	nextFlush  time.Time
	openDay    int

	guard DiskGuard
}

// NewFileWriter creates a writer. No file is opened until the first write.
func NewFileWriter(cfg WriterConfig) *FileWriter {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Probe == nil {
		cfg.Probe = NopProbe{}
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = types.SilentErrorHandler
	}
	return &FileWriter{cfg: cfg}
}

// Key returns the routing key the writer is bound to.
func (w *FileWriter) Key() types.RoutingKey {
	return w.cfg.Key
}

// SetBase changes the base directory. It takes effect when the next file is
// opened; an empty base makes every write a no-op.
func (w *FileWriter) SetBase(base string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cfg.Base = base
}

// Base returns the configured base directory.
func (w *FileWriter) Base() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg.Base
}

// Dir returns the directory new files for this key are created in.
func (w *FileWriter) Dir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dir()
}

func (w *FileWriter) dir() string {
	return filepath.Join(append([]string{w.cfg.Base}, w.cfg.Key.Segments()...)...)
}

// Write appends payload to the current file, rotating and flushing as
// needed. Failures are reported to the error handler and never returned.
func (w *FileWriter) Write(force bool, payload []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cfg.Base == "" {
		w.cfg.Metrics.TrackDropped(metrics.DropUnconfigured)
		return
	}

	now := w.cfg.Clock()

	if w.file != nil {
		switch {
		case w.cfg.MaxSizeBytes > 0 && w.length >= w.cfg.MaxSizeBytes:
			w.rotate(metrics.RotateSize)
		case now.Day() != w.openDay:
			w.rotate(metrics.RotateDay)
		}
	}

	if w.file == nil && !w.open(now) {
		w.cfg.Metrics.TrackDropped(metrics.DropOpenFailed)
		return
	}

	if !w.guard.Allow(now) {
		w.cfg.Metrics.TrackDropped(metrics.DropDiskGuard)
		return
	}

	start := time.Now()
	if _, err := w.writer.Write(payload); err != nil {
		w.writeFailed(now, "write", err)
		return
	}
	w.length += int64(len(payload))
	w.sinceFlush += int64(len(payload))
	w.cfg.Metrics.TrackWrite(len(payload), time.Since(start))

	if force || w.sinceFlush >= FlushThresholdBytes || !now.Before(w.nextFlush) {
		w.flush(now)
	}
}

// Flush writes buffered bytes to the file unconditionally.
func (w *FileWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flush(w.cfg.Clock())
}

// Close flushes and releases the file handle and its lock. A later write
// opens a new file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	flushErr := w.writer.Flush()
	closeErr := w.release()
	if flushErr != nil {
		return errors.Wrap(flushErr, "flush on close")
	}
	return closeErr
}

// Stats returns the writer's current state.
func (w *FileWriter) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Key:        w.cfg.Key.String(),
		Base:       w.cfg.Base,
		Path:       w.path,
		Length:     w.length,
		SinceFlush: w.sinceFlush,
		NextFlush:  w.nextFlush,
		Stopped:    w.guard.Stopped(),
		RetryAfter: w.guard.RetryAfter(),
	}
}

func (w *FileWriter) rotate(reason string) {
	if err := w.writer.Flush(); err != nil {
		w.report(types.ErrCodeFileFlush, "flush", err)
	}
	if err := w.release(); err != nil {
		w.report(types.ErrCodeFileClose, "close", err)
	}
	w.cfg.Metrics.TrackRotation(reason)
}

// release closes the handle without flushing and resets per-file counters.
func (w *FileWriter) release() error {
	var errs []error
	if w.lock != nil {
		if err := w.lock.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "unlock"))
		}
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close file"))
		}
	}
	w.file, w.writer, w.lock, w.path = nil, nil, nil, ""
	w.length, w.sinceFlush = 0, 0

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// open creates the next file for the key and writes its header.
func (w *FileWriter) open(now time.Time) bool {
	dir := w.dir()
	// #nosec G301 - log directories need to be accessible by other processes
	if err := os.MkdirAll(dir, 0755); err != nil {
		w.cfg.Metrics.TrackOpenFailure()
		w.reportPath(types.ErrCodeMkdir, "mkdir", dir, errors.Wrap(err, "create directory"))
		return false
	}

	file, path, err := createLogFile(dir, now)
	if err != nil {
		w.cfg.Metrics.TrackOpenFailure()
		w.reportPath(types.ErrCodeFileOpen, "open", dir, err)
		return false
	}

	lock := flock.New(path)
	if locked, err := lock.TryLock(); err != nil || !locked {
		if err == nil {
			err = errors.New("lock held elsewhere")
		}
		w.reportPath(types.ErrCodeFileLock, "lock", path, err)
		lock = nil
	}

	w.file = file
	w.writer = bufio.NewWriterSize(file, DefaultBufferSize)
	w.lock = lock
	w.path = path
	w.length, w.sinceFlush = 0, 0
	w.openDay = now.Day()
	w.cfg.Metrics.TrackOpen()

	header := Header(now, localHost(), w.cfg.IncludeFileLine)
	if _, err := w.writer.Write(header); err != nil {
		w.writeFailed(now, "header", err)
		return w.file != nil
	}
	w.length += int64(len(header))
	w.sinceFlush += int64(len(header))

	w.probe(now)

	if w.cfg.Retention != nil {
		n, err := w.cfg.Retention.Prune(dir)
		w.cfg.Metrics.TrackPruned(n)
		if err != nil {
			w.reportPath(types.ErrCodeRetention, "prune", dir, err)
		}
	}
	return true
}

// createLogFile opens <dir>/<ts>.<PID>.log, adding a ".<n>" suffix when a file
// with that name already exists.
func createLogFile(dir string, now time.Time) (*os.File, string, error) {
	stem := fmt.Sprintf("%s.%08X", now.Format(FileTimeFormat), os.Getpid())
	for n := 0; n < maxNameCollisions; n++ {
		name := stem + ".log"
		if n > 0 {
			name = fmt.Sprintf("%s.%d.log", stem, n)
		}
		path := filepath.Join(dir, name)
		// #nosec G302 G304 - log files need to be readable, path is built from sanitized segments
		file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			return file, path, nil
		}
		if !os.IsExist(err) {
			return nil, path, errors.Wrap(err, "open file")
		}
	}
	return nil, "", errors.Errorf("open file: %d name collisions for %s", maxNameCollisions, stem)
}

func (w *FileWriter) flush(now time.Time) {
	if w.file != nil {
		if err := w.writer.Flush(); err != nil {
			w.writeFailed(now, "flush", err)
		} else {
			if w.cfg.SyncOnFlush {
				if err := w.file.Sync(); err != nil {
					w.report(types.ErrCodeFileFlush, "sync", err)
				}
			}
			w.sinceFlush = 0
			w.cfg.Metrics.TrackFlush()
			w.probe(now)
		}
	}
	w.nextFlush = now.Add(w.cfg.BufferInterval)
}

// probe trips the guard when free space falls under MinFreeBytes.
func (w *FileWriter) probe(now time.Time) {
	if w.cfg.MinFreeBytes == 0 || w.guard.Stopped() {
		return
	}
	free, err := w.cfg.Probe.FreeBytes(filepath.Dir(w.path))
	if err != nil || free >= w.cfg.MinFreeBytes {
		return
	}
	w.tripGuard(now, errors.Errorf("%d bytes free, need %d", free, w.cfg.MinFreeBytes))
}

// writeFailed handles an append or flush error. A full disk trips the guard
// and keeps the handle; anything else discards the handle so the next write
// reopens.
func (w *FileWriter) writeFailed(now time.Time, op string, err error) {
	if isDiskFullError(err) {
		w.writer.Reset(w.file)
		w.sinceFlush = 0
		w.tripGuard(now, err)
		return
	}

	code := types.ErrCodeFileWrite
	if op == "flush" {
		code = types.ErrCodeFileFlush
	}
	w.report(code, op, err)
	w.cfg.Metrics.TrackDropped(metrics.DropWriteFailed)
	if cerr := w.release(); cerr != nil {
		w.report(types.ErrCodeFileClose, "close", cerr)
	}
}

func (w *FileWriter) tripGuard(now time.Time, cause error) {
	w.guard.Trip(now, w.cfg.BufferInterval)
	w.cfg.Metrics.TrackDiskFull()
	w.report(types.ErrCodeDiskFull, "write", cause)
}

func (w *FileWriter) report(code types.ErrorCode, op string, err error) {
	w.reportPath(code, op, w.path, err)
}

func (w *FileWriter) reportPath(code types.ErrorCode, op, path string, err error) {
	w.cfg.Metrics.TrackError(code.String())
	w.cfg.ErrorHandler(types.NewSinkError(code, op, path, err).WithKey(w.cfg.Key))
}
