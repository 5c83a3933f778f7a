package sink

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wayneeseguin/logsink/internal/metrics"
	testhelpers "github.com/wayneeseguin/logsink/internal/testing"
	"github.com/wayneeseguin/logsink/pkg/backends"
	"github.com/wayneeseguin/logsink/pkg/types"
)

func newTestSink(t *testing.T, options ...Option) (*Sink, *testhelpers.Clock) {
	t.Helper()
	clock := testhelpers.NewClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local))
	opts := append([]Option{
		WithClock(clock.Now),
		WithErrorHandler(SilentErrorHandler),
	}, options...)
	s, err := New(opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "defaults",
			check: func(t *testing.T, c *Config) {
				if c.MaxSizeMB != DefaultMaxSizeMB || c.BufferSeconds != DefaultBufferSeconds {
					t.Errorf("unexpected defaults: %+v", c)
				}
			},
		},
		{
			name:   "zero max size uses default",
			mutate: func(c *Config) { c.MaxSizeMB = 0 },
			check: func(t *testing.T, c *Config) {
				if c.MaxSizeMB != DefaultMaxSizeMB {
					t.Errorf("MaxSizeMB = %d, want %d", c.MaxSizeMB, DefaultMaxSizeMB)
				}
			},
		},
		{
			name:   "nil handler and clock filled in",
			mutate: func(c *Config) { c.ErrorHandler = nil; c.Clock = nil; c.DiskProbe = nil },
			check: func(t *testing.T, c *Config) {
				if c.ErrorHandler == nil || c.Clock == nil || c.DiskProbe == nil {
					t.Error("expected defaults for handler, clock and probe")
				}
			},
		},
		{name: "negative size", mutate: func(c *Config) { c.MaxSizeMB = -1 }, wantErr: true},
		{name: "negative buffer", mutate: func(c *Config) { c.BufferSeconds = -1 }, wantErr: true},
		{name: "negative max files", mutate: func(c *Config) { c.MaxFiles = -1 }, wantErr: true},
		{name: "negative max age", mutate: func(c *Config) { c.MaxAge = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			if tt.mutate != nil {
				tt.mutate(c)
			}
			err := c.Validate()
			if tt.wantErr {
				if !errors.Is(err, &types.SinkError{Code: types.ErrCodeInvalidConfig}) {
					t.Errorf("Validate() = %v, want invalid_config", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() failed: %v", err)
			}
			if tt.check != nil {
				tt.check(t, c)
			}
		})
	}
}

func TestOptionErrors(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"negative size", WithMaxSizeMB(-5)},
		{"negative buffer", WithBufferSeconds(-1)},
		{"bad severity", WithSeverityDestination(types.Severity(9), "/tmp")},
		{"negative max files", WithMaxFiles(-1)},
		{"negative max age", WithMaxAge(-time.Hour)},
		{"nil probe", WithDiskProbe(nil, 1)},
		{"nil clock", WithClock(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opt); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestRouteSeverityMode(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSink(t, WithLogDir(dir), WithFlushImmediately(true))

	s.Route(types.SeverityInfo, "socket.Msg", []byte("info line\n"), false)
	s.Route(types.SeverityError, "", []byte("error line\n"), false)

	if got := testhelpers.ReadSingle(t, filepath.Join(dir, "INFO")); !strings.HasSuffix(got, "info line\n") {
		t.Errorf("INFO file = %q", got)
	}
	if got := testhelpers.ReadSingle(t, filepath.Join(dir, "ERROR")); !strings.HasSuffix(got, "error line\n") {
		t.Errorf("ERROR file = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "socket")); !os.IsNotExist(err) {
		t.Error("severity mode must not create category directories")
	}
}

func TestRouteCategoryMode(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSink(t,
		WithCategoryMode(true),
		WithCategoryDestination(dir),
		WithFlushImmediately(true),
	)

	s.Route(types.SeverityWarning, "socket.Msg", []byte("socket message\n"), false)
	s.Route(types.SeverityDebug, "", []byte("no category\n"), false)

	if got := testhelpers.ReadSingle(t, filepath.Join(dir, "socket", "Msg")); !strings.HasSuffix(got, "socket message\n") {
		t.Errorf("socket/Msg file = %q", got)
	}
	if got := testhelpers.ReadSingle(t, filepath.Join(dir, types.DefaultCategory)); !strings.HasSuffix(got, "no category\n") {
		t.Errorf("default category file = %q", got)
	}
}

func TestRouteUnconfiguredDrops(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSink(t, WithSeverityDestination(types.SeverityError, dir))

	for i := 0; i < 1000; i++ {
		s.Route(types.SeverityInfo, "", []byte("dropped\n"), true)
	}

	if got := s.Metrics().DroppedCount(metrics.DropUnconfigured); got != 1000 {
		t.Errorf("DroppedCount(unconfigured) = %d, want 1000", got)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("expected nothing written, found %d entries", len(entries))
	}
}

func TestRouteInvalidSeverity(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSink(t, WithLogDir(dir))

	s.Route(types.Severity(-1), "", []byte("x\n"), true)
	s.Route(types.Severity(5), "", []byte("x\n"), true)

	if got := s.Metrics().DroppedCount(metrics.DropInvalidSeverity); got != 2 {
		t.Errorf("DroppedCount(invalid_severity) = %d, want 2", got)
	}
	if len(s.Stats()) != 0 {
		t.Error("no writer should be created for an invalid severity")
	}
}

func TestResolveIdempotentUnderConcurrency(t *testing.T) {
	s, _ := newTestSink(t, WithLogDir(t.TempDir()))
	reg := s.Registry()

	const goroutines = 64
	got := make([]*backends.FileWriter, goroutines)
	var g errgroup.Group
	for i := 0; i < goroutines; i++ {
		i := i
		g.Go(func() error {
			got[i] = reg.Resolve(types.CategoryKey("socket.Msg"))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	for i := 1; i < goroutines; i++ {
		if got[i] != got[0] {
			t.Fatalf("Resolve returned different writers: %p vs %p", got[i], got[0])
		}
	}
	if n := s.Metrics().WritersCreated(); n != 1 {
		t.Errorf("WritersCreated = %d, want 1", n)
	}
	if reg.Resolve(types.SeverityKey(types.Severity(7))) != nil {
		t.Error("Resolve should return nil for an invalid severity")
	}
}

func TestConcurrentRouteSameKey(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSink(t, WithLogDir(dir))

	const goroutines = 16
	const perGoroutine = 200
	line := []byte("0123456789abcdef\n")

	var g errgroup.Group
	for i := 0; i < goroutines; i++ {
		g.Go(func() error {
			for j := 0; j < perGoroutine; j++ {
				s.Route(types.SeverityWarning, "", line, false)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	content := testhelpers.ReadSingle(t, filepath.Join(dir, "WARNING"))
	body := content[strings.Index(content, "msg\n")+len("msg\n"):]
	if len(body) != goroutines*perGoroutine*len(line) {
		t.Errorf("body length = %d, want %d", len(body), goroutines*perGoroutine*len(line))
	}
	if strings.Count(body, string(line)) != goroutines*perGoroutine {
		t.Error("records were interleaved")
	}
}

func TestFlushAllActiveTableOnly(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSink(t,
		WithLogDir(filepath.Join(dir, "sev")),
		WithCategoryDestination(filepath.Join(dir, "cat")),
		WithBufferSeconds(3600),
	)

	// First writes flush because no deadline is set yet.
	s.Route(types.SeverityInfo, "net", []byte("a\n"), false)
	s.Route(types.SeverityInfo, "net", []byte("b\n"), false)

	s.SetCategoryMode(true)
	s.Route(types.SeverityInfo, "net", []byte("c\n"), false)
	s.Route(types.SeverityInfo, "net", []byte("d\n"), false)

	sevWriter := s.Registry().Resolve(types.SeverityKey(types.SeverityInfo))
	catWriter := s.Registry().Resolve(types.CategoryKey("net"))
	if sevWriter.Stats().SinceFlush == 0 || catWriter.Stats().SinceFlush == 0 {
		t.Fatal("expected both writers to hold buffered bytes")
	}

	s.FlushAll()

	if catWriter.Stats().SinceFlush != 0 {
		t.Error("FlushAll should flush the active category table")
	}
	if sevWriter.Stats().SinceFlush == 0 {
		t.Error("FlushAll should not touch the inactive severity table")
	}

	s.SetCategoryMode(false)
	s.FlushAll()
	if sevWriter.Stats().SinceFlush != 0 {
		t.Error("FlushAll should flush the severity table once it is active")
	}
}

func TestFlushImmediatelyOverridesHint(t *testing.T) {
	s, _ := newTestSink(t, WithLogDir(t.TempDir()), WithBufferSeconds(3600))

	s.Route(types.SeverityInfo, "", []byte("first\n"), false)
	s.Route(types.SeverityInfo, "", []byte("buffered\n"), false)
	w := s.Registry().Resolve(types.SeverityKey(types.SeverityInfo))
	if w.Stats().SinceFlush == 0 {
		t.Fatal("expected buffered bytes")
	}

	s.Route(types.SeverityInfo, "", []byte("hinted\n"), true)
	if w.Stats().SinceFlush != 0 {
		t.Error("flush hint should flush")
	}

	s.SetFlushImmediately(true)
	s.Route(types.SeverityInfo, "", []byte("immediate\n"), false)
	if w.Stats().SinceFlush != 0 {
		t.Error("FlushImmediately should flush every record")
	}
}

func TestSetSeverityDestinationOnNextOpen(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	s, _ := newTestSink(t, WithLogDir(first), WithFlushImmediately(true))

	s.Route(types.SeverityInfo, "", []byte("one\n"), false)
	if err := s.SetSeverityDestination(types.SeverityInfo, second); err != nil {
		t.Fatalf("SetSeverityDestination failed: %v", err)
	}
	s.Route(types.SeverityInfo, "", []byte("two\n"), false)

	if got := testhelpers.ReadSingle(t, filepath.Join(first, "INFO")); !strings.HasSuffix(got, "one\ntwo\n") {
		t.Errorf("open file should keep receiving records, got %q", got)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	s.Route(types.SeverityInfo, "", []byte("three\n"), false)
	if got := testhelpers.ReadSingle(t, filepath.Join(second, "INFO")); !strings.HasSuffix(got, "three\n") {
		t.Errorf("new file should use the new base, got %q", got)
	}

	if err := s.SetSeverityDestination(types.Severity(8), second); err == nil {
		t.Error("expected an error for an invalid severity")
	}
}

func TestSetCategoryDestinationUpdatesExistingWriters(t *testing.T) {
	s, _ := newTestSink(t, WithCategoryMode(true), WithFlushImmediately(true))

	s.Route(types.SeverityInfo, "app", []byte("dropped\n"), false)

	dir := t.TempDir()
	s.SetCategoryDestination(dir)
	s.Route(types.SeverityInfo, "app", []byte("kept\n"), false)

	if got := testhelpers.ReadSingle(t, filepath.Join(dir, "app")); !strings.HasSuffix(got, "kept\n") {
		t.Errorf("app file = %q", got)
	}
	if got := s.Metrics().DroppedCount(metrics.DropUnconfigured); got != 1 {
		t.Errorf("DroppedCount(unconfigured) = %d, want 1", got)
	}
}

func TestSettersAffectNewWriters(t *testing.T) {
	s, _ := newTestSink(t, WithLogDir(t.TempDir()))

	if err := s.SetMaxSizeMB(0); err != nil {
		t.Fatal(err)
	}
	if err := s.SetBufferSeconds(7); err != nil {
		t.Fatal(err)
	}
	s.SetIncludeFileLine(true)
	s.SetPrintToConsole(true)
	s.SetDumpDir("/var/dumps")

	cfg := s.Config()
	if cfg.MaxSizeMB != DefaultMaxSizeMB || cfg.BufferSeconds != 7 || !cfg.IncludeFileLine {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if !s.PrintToConsole() || s.DumpDir() != "/var/dumps" || !s.IncludeFileLine() {
		t.Error("accessors do not reflect setters")
	}

	s.Route(types.SeverityDebug, "", []byte("x\n"), true)
	w := s.Registry().Resolve(types.SeverityKey(types.SeverityDebug))
	data, err := os.ReadFile(w.Stats().Path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "threadid](file:line function) msg") {
		t.Errorf("header should announce file/line, got %q", data)
	}

	if err := s.SetMaxSizeMB(-1); err == nil {
		t.Error("expected error for negative size")
	}
	if err := s.SetBufferSeconds(-1); err == nil {
		t.Error("expected error for negative buffer")
	}
}

func TestRetentionAppliedOnOpen(t *testing.T) {
	dir := t.TempDir()
	s, clock := newTestSink(t, WithLogDir(dir), WithMaxFiles(2), WithFlushImmediately(true))

	for day := 0; day < 4; day++ {
		s.Route(types.SeverityInfo, "", []byte("record\n"), false)
		clock.Advance(24 * time.Hour)
	}

	if got := len(testhelpers.Files(t, filepath.Join(dir, "INFO"))); got != 2 {
		t.Errorf("kept %d files, want 2", got)
	}
	if got := s.Metrics().Snapshot().FilesPruned; got != 2 {
		t.Errorf("FilesPruned = %d, want 2", got)
	}

	if err := s.SetRetention(0, 0); err != nil {
		t.Fatal(err)
	}
	s.Route(types.SeverityInfo, "", []byte("record\n"), false)
	clock.Advance(24 * time.Hour)
	s.Route(types.SeverityInfo, "", []byte("record\n"), false)
	if got := len(testhelpers.Files(t, filepath.Join(dir, "INFO"))); got != 4 {
		t.Errorf("kept %d files after disabling retention, want 4", got)
	}
}

func TestErrorHandlerAndDiagnosticsFile(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "blocker")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	diag := filepath.Join(base, "diag", "logsink.log")

	ch := make(chan *types.SinkError, 4)
	s, _ := newTestSink(t,
		WithLogDir(blocker),
		WithErrorHandler(ChannelErrorHandler(ch)),
		WithDiagnosticsFile(diag),
	)

	s.Route(types.SeverityError, "", []byte("lost\n"), true)

	select {
	case err := <-ch:
		if err.Code != types.ErrCodeMkdir || err.Key != "severity:ERROR" {
			t.Errorf("unexpected error: %+v", err)
		}
	default:
		t.Fatal("error handler was not called")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	data, err := os.ReadFile(diag)
	if err != nil {
		t.Fatalf("diagnostics file not written: %v", err)
	}
	if !strings.Contains(string(data), "[mkdir]") {
		t.Errorf("diagnostics file = %q", data)
	}
	if got := s.Metrics().DroppedCount(metrics.DropOpenFailed); got != 1 {
		t.Errorf("DroppedCount(open_failed) = %d, want 1", got)
	}
}

func TestMultiErrorHandler(t *testing.T) {
	var calls int
	count := func(*types.SinkError) { calls++ }
	h := MultiErrorHandler(count, nil, count)
	h(types.NewSinkError(types.ErrCodeFileWrite, "write", "/x", errors.New("boom")))
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSink(t, WithLogDir(dir), WithCategoryDestination(dir), WithBufferSeconds(3600))

	s.Route(types.SeverityInfo, "", []byte("first\n"), false)
	s.Route(types.SeverityInfo, "", []byte("buffered\n"), false)
	s.SetCategoryMode(true)
	s.Route(types.SeverityInfo, "svc", []byte("cat\n"), false)

	if got := len(s.Stats()); got != 2 {
		t.Fatalf("Stats() has %d writers, want 2", got)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := len(s.Stats()); got != 0 {
		t.Errorf("Stats() after Close has %d writers", got)
	}
	if got := testhelpers.ReadSingle(t, filepath.Join(dir, "INFO")); !strings.HasSuffix(got, "first\nbuffered\n") {
		t.Errorf("Close should flush buffered records, got %q", got)
	}
}
