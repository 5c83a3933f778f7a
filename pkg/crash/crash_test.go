package crash

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/wayneeseguin/logsink/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type routed struct {
	sev       types.Severity
	category  string
	payload   string
	flushHint bool
}

type fakeTarget struct {
	mu      sync.Mutex
	dumpDir string
	records []routed
	events  []string
}

func (t *fakeTarget) Route(sev types.Severity, category string, payload []byte, flushHint bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, routed{sev, category, string(payload), flushHint})
	t.events = append(t.events, "route")
}

func (t *fakeTarget) FlushAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, "flush")
}

func (t *fakeTarget) DumpDir() string {
	return t.dumpDir
}

func (t *fakeTarget) snapshot() ([]routed, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]routed(nil), t.records...), append([]string(nil), t.events...)
}

type exitRecorder struct {
	mu    sync.Mutex
	codes []int
	ch    chan int
}

func newExitRecorder() *exitRecorder {
	return &exitRecorder{ch: make(chan int, 4)}
}

func (e *exitRecorder) exit(code int) {
	e.mu.Lock()
	e.codes = append(e.codes, code)
	e.mu.Unlock()
	e.ch <- code
}

func (e *exitRecorder) wait(t *testing.T) int {
	t.Helper()
	select {
	case code := <-e.ch:
		return code
	case <-time.After(5 * time.Second):
		t.Fatal("process was not terminated")
		return -1
	}
}

var captureTime = time.Date(2024, 3, 5, 10, 20, 30, 45*int(time.Millisecond), time.Local)

func newTestCapturer(target Target, exit *exitRecorder, opts ...Option) *Capturer {
	opts = append([]Option{
		WithExit(exit.exit),
		WithClock(func() time.Time { return captureTime }),
	}, opts...)
	return NewCapturer(target, opts...)
}

func TestArtifactName(t *testing.T) {
	tests := []struct {
		at   time.Time
		want string
	}{
		{captureTime, "20240305102030045.dmp"},
		{time.Date(2024, 12, 31, 23, 59, 59, 999999999, time.Local), "20241231235959999.dmp"},
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local), "20250101000000000.dmp"},
	}
	for _, tt := range tests {
		if got := ArtifactName(tt.at); got != tt.want {
			t.Errorf("ArtifactName(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}

func TestCaptureWritesArtifactAndRecord(t *testing.T) {
	dumpDir := filepath.Join(t.TempDir(), "dumps", "nested")
	target := &fakeTarget{dumpDir: dumpDir}
	exit := newExitRecorder()
	c := newTestCapturer(target, exit)

	c.Capture(Fault{Code: "SIGSEGV", Address: "0xdeadbeef", Reason: "segmentation violation", Stack: []byte("goroutine 7 [running]:")})

	if code := exit.wait(t); code != ExitCode {
		t.Errorf("exit code = %d, want %d", code, ExitCode)
	}

	wantPath := filepath.Join(dumpDir, "20240305102030045.dmp")
	if c.LastArtifact() != wantPath {
		t.Errorf("LastArtifact() = %q, want %q", c.LastArtifact(), wantPath)
	}
	data, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("dump not written: %v", err)
	}
	for _, want := range []string{
		"Fault: SIGSEGV\n",
		"Address: 0xdeadbeef\n",
		"Reason: segmentation violation\n",
		"goroutine 7 [running]:",
		"All goroutines:",
		"TestCaptureWritesArtifactAndRecord",
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("dump missing %q", want)
		}
	}

	records, events := target.snapshot()
	if len(records) != 1 {
		t.Fatalf("routed %d records, want 1", len(records))
	}
	r := records[0]
	if r.sev != types.SeverityError || r.category != Category || !r.flushHint {
		t.Errorf("record = %+v, want ERROR/%s with flush hint", r, Category)
	}
	for _, want := range []string{"SIGSEGV", "0xdeadbeef", wantPath} {
		if !strings.Contains(r.payload, want) {
			t.Errorf("record %q missing %q", r.payload, want)
		}
	}
	if !strings.HasPrefix(r.payload, "[E") || !strings.HasSuffix(r.payload, "\n") {
		t.Errorf("record not formatted as a log line: %q", r.payload)
	}
	if strings.Join(events, ",") != "route,flush" {
		t.Errorf("events = %v, want route then flush", events)
	}
}

func TestCaptureOnlyOnce(t *testing.T) {
	target := &fakeTarget{dumpDir: t.TempDir()}
	exit := newExitRecorder()
	c := newTestCapturer(target, exit)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Capture(Fault{Code: "panic", Reason: "concurrent"})
		}()
	}
	wg.Wait()

	records, _ := target.snapshot()
	if len(records) != 1 {
		t.Errorf("routed %d records, want 1", len(records))
	}
	exit.mu.Lock()
	defer exit.mu.Unlock()
	if len(exit.codes) != 1 {
		t.Errorf("exit called %d times, want 1", len(exit.codes))
	}
}

func TestCaptureWithoutDumpDir(t *testing.T) {
	target := &fakeTarget{}
	exit := newExitRecorder()
	c := newTestCapturer(target, exit)

	c.Capture(Fault{Code: "SIGABRT", Reason: "abort"})
	exit.wait(t)

	if c.LastArtifact() != "" {
		t.Errorf("LastArtifact() = %q, want empty", c.LastArtifact())
	}
	records, _ := target.snapshot()
	if len(records) != 1 {
		t.Fatalf("routed %d records, want 1", len(records))
	}
	if !strings.Contains(records[0].payload, "at unknown") || !strings.Contains(records[0].payload, "dump (none)") {
		t.Errorf("unexpected record %q", records[0].payload)
	}
}

func TestCaptureDumpFailureStillLogs(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	target := &fakeTarget{dumpDir: filepath.Join(blocker, "dumps")}
	exit := newExitRecorder()

	var got []*types.SinkError
	c := newTestCapturer(target, exit, WithErrorHandler(func(err *types.SinkError) {
		got = append(got, err)
	}))

	c.Capture(Fault{Code: "panic", Reason: "boom"})
	exit.wait(t)

	if len(got) != 1 || got[0].Code != types.ErrCodeDump {
		t.Fatalf("errors = %v, want one %s error", got, types.ErrCodeDump)
	}
	records, _ := target.snapshot()
	if len(records) != 1 {
		t.Fatalf("routed %d records, want 1", len(records))
	}
}

func TestPanicHandlerGo(t *testing.T) {
	target := &fakeTarget{dumpDir: t.TempDir()}
	exit := newExitRecorder()
	c := newTestCapturer(target, exit)

	h := NewPanicHandler()
	if err := h.Install(c); err != nil {
		t.Fatal(err)
	}
	defer h.Uninstall()

	h.Go(func() {
		panic("worker exploded")
	})
	exit.wait(t)

	records, _ := target.snapshot()
	if len(records) != 1 {
		t.Fatalf("routed %d records, want 1", len(records))
	}
	payload := records[0].payload
	if !strings.Contains(payload, "fatal fault panic at 0x") || !strings.Contains(payload, "crash_test.go:") {
		t.Errorf("record does not name the panic site: %q", payload)
	}
	if !strings.Contains(payload, "worker exploded") {
		t.Errorf("record does not carry the panic value: %q", payload)
	}

	data, err := os.ReadFile(c.LastArtifact())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Faulting goroutine:") {
		t.Error("dump is missing the faulting goroutine stack")
	}
}

func TestPanicHandlerRecoverRuntimeError(t *testing.T) {
	target := &fakeTarget{}
	exit := newExitRecorder()
	c := newTestCapturer(target, exit)

	h := NewPanicHandler()
	if err := h.Install(c); err != nil {
		t.Fatal(err)
	}

	func() {
		defer h.Recover()
		var m map[string]int
		m["x"] = 1
	}()
	exit.wait(t)

	records, _ := target.snapshot()
	if len(records) != 1 || !strings.Contains(records[0].payload, "assignment to entry in nil map") {
		t.Errorf("unexpected records %v", records)
	}
}

func TestPanicHandlerUninstalledRepanics(t *testing.T) {
	h := NewPanicHandler()
	if err := h.Install(nil); err == nil {
		t.Error("Install(nil) should fail")
	}

	var recovered interface{}
	func() {
		defer func() { recovered = recover() }()
		func() {
			defer h.Recover()
			panic("not handled")
		}()
	}()
	if recovered != "not handled" {
		t.Errorf("recovered %v, want the original panic value", recovered)
	}
}

func TestPanicFaultOutsidePanic(t *testing.T) {
	f := PanicFault(os.ErrClosed, nil)
	if f.Code != "panic" || f.Reason != os.ErrClosed.Error() || f.Address != "" {
		t.Errorf("PanicFault = %+v", f)
	}
}

func TestRuntimeCrashOutput(t *testing.T) {
	dumpDir := filepath.Join(t.TempDir(), "dumps")
	target := &fakeTarget{dumpDir: dumpDir}
	c := newTestCapturer(target, newExitRecorder())

	o := NewRuntimeCrashOutput()
	if err := o.Install(c); err != nil {
		t.Fatal(err)
	}
	if err := o.Install(c); err == nil {
		t.Error("second Install should fail")
	}

	path := o.Path()
	if path != filepath.Join(dumpDir, "20240305102030045.crash") {
		t.Errorf("Path() = %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("crash output file missing: %v", err)
	}

	if err := o.Uninstall(); err != nil {
		t.Fatal(err)
	}
	if o.Path() != "" {
		t.Error("Path() should be empty after Uninstall")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("empty crash output file should be removed")
	}
	if err := o.Uninstall(); err != nil {
		t.Errorf("second Uninstall: %v", err)
	}
}

func TestRuntimeCrashOutputRequiresDumpDir(t *testing.T) {
	c := newTestCapturer(&fakeTarget{}, newExitRecorder())
	if err := NewRuntimeCrashOutput().Install(c); err == nil {
		t.Error("Install without a dump directory should fail")
	}
}

type failingHandler struct{}

func (failingHandler) Install(*Capturer) error { return os.ErrInvalid }
func (failingHandler) Uninstall() error        { return nil }

func TestInstallRollsBack(t *testing.T) {
	c := newTestCapturer(&fakeTarget{}, newExitRecorder())
	h := NewPanicHandler()

	if err := Install(c, h, failingHandler{}); err == nil {
		t.Fatal("Install should fail")
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.capturer != nil {
		t.Error("installed handlers should be rolled back")
	}
}
