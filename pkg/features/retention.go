package features

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/wayneeseguin/logsink/pkg/backends"
)

// logFilePattern matches names produced by FileWriter:
// yyyyMMdd-HHmmss.<PID>.log or yyyyMMdd-HHmmss.<PID>.<n>.log
var logFilePattern = regexp.MustCompile(`^(\d{8}-\d{6})\.[0-9A-F]{8}(?:\.(\d+))?\.log$`)

// RetentionManager removes old log files from routing directories. Files
// whose lock is held (the active file of a writer in this or another
// process) are never removed.
type RetentionManager struct {
	mu       sync.RWMutex
	maxAge   time.Duration
	maxFiles int
	now      func() time.Time
}

// NewRetentionManager creates a retention manager. Zero values disable the
// corresponding limit.
func NewRetentionManager(maxFiles int, maxAge time.Duration) *RetentionManager {
	return &RetentionManager{
		maxFiles: maxFiles,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// SetMaxAge sets the maximum age for log files
func (r *RetentionManager) SetMaxAge(duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxAge = duration
}

// SetMaxFiles sets the maximum number of files kept per directory
func (r *RetentionManager) SetMaxFiles(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxFiles = count
}

// SetClock replaces the time source used for age checks.
func (r *RetentionManager) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Enabled reports whether any limit is set.
func (r *RetentionManager) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxAge > 0 || r.maxFiles > 0
}

// GetStatus returns the current limits.
func (r *RetentionManager) GetStatus() RetentionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RetentionStatus{MaxAge: r.maxAge, MaxFiles: r.maxFiles}
}

// RetentionStatus represents the limits of the retention manager
type RetentionStatus struct {
	MaxAge   time.Duration `json:"max_age"`
	MaxFiles int           `json:"max_files"`
}

// LogFileInfo describes a log file found in a routing directory.
type LogFileInfo struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
	seq     int
}

// ListLogFiles returns the log files in dir, newest first.
func ListLogFiles(dir string) ([]LogFileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading log directory")
	}

	var files []LogFileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := logFilePattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}
		created, err := time.ParseInLocation(backends.FileTimeFormat, matches[1], time.Local)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		seq, _ := strconv.Atoi(matches[2])
		files = append(files, LogFileInfo{
			Path:    filepath.Join(dir, entry.Name()),
			Name:    entry.Name(),
			Size:    info.Size(),
			Created: created,
			seq:     seq,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].Created.Equal(files[j].Created) {
			return files[i].Created.After(files[j].Created)
		}
		if files[i].seq != files[j].seq {
			return files[i].seq > files[j].seq
		}
		return files[i].Name > files[j].Name
	})
	return files, nil
}

// Prune applies the limits to dir and returns how many files were removed.
// A failed removal does not stop the others; the first error is returned.
func (r *RetentionManager) Prune(dir string) (int, error) {
	r.mu.RLock()
	maxAge, maxFiles, now := r.maxAge, r.maxFiles, r.now
	r.mu.RUnlock()

	if maxAge <= 0 && maxFiles <= 0 {
		return 0, nil
	}

	files, err := ListLogFiles(dir)
	if err != nil {
		return 0, err
	}

	cutoff := now().Add(-maxAge)
	removed := 0
	var firstErr error
	for i, f := range files {
		expired := maxAge > 0 && f.Created.Before(cutoff)
		excess := maxFiles > 0 && i >= maxFiles
		if !expired && !excess {
			continue
		}
		ok, err := removeUnlocked(f.Path)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if ok {
			removed++
		}
	}
	return removed, firstErr
}

// PruneTree runs Prune on root and every directory below it.
func (r *RetentionManager) PruneTree(root string) (int, error) {
	total := 0
	var firstErr error
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		n, perr := r.Prune(path)
		total += n
		if perr != nil && firstErr == nil {
			firstErr = perr
		}
		return nil
	})
	if err != nil {
		return total, errors.Wrapf(err, "walking %s", root)
	}
	return total, firstErr
}

// LogDirs returns the directories at or below root that contain log files,
// in walk order.
func LogDirs(root string) ([]string, error) {
	var dirs []string
	seen := make(map[string]bool)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !logFilePattern.MatchString(d.Name()) {
			return nil
		}
		if dir := filepath.Dir(path); !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walking %s", root)
	}
	return dirs, nil
}

// removeUnlocked deletes path if no one holds its lock.
func removeUnlocked(path string) (bool, error) {
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return false, errors.Wrapf(err, "locking %s", path)
	}
	if !locked {
		return false, nil
	}
	defer func() {
		_ = lock.Close() // Best effort unlock
	}()

	if err := os.Remove(path); err != nil {
		return false, errors.Wrap(err, "failed to remove old log file")
	}
	return true, nil
}
