package formatters

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/wayneeseguin/logsink/internal/buffer"
	"github.com/wayneeseguin/logsink/pkg/types"
)

// LineTimeFormat is the time-of-day layout in a log line.
const LineTimeFormat = "15:04:05.000"

// LineFormatter renders records in the layout announced by the file header:
//
//	[Ipid hh:mm:ss.zzz threadid] cat: msg
//	[Ipid hh:mm:ss.zzz threadid](file:line function) msg
type LineFormatter struct {
	// IncludeFileLine adds the "(file:line function)" field.
	IncludeFileLine bool

	// CategoryPrefix writes "cat: " before the message. Only useful in
	// severity mode; in category mode the directory already names it.
	CategoryPrefix bool
}

var (
	pid   = strconv.Itoa(os.Getpid())
	lines = buffer.NewPool()
)

// NewLineFormatter creates a line formatter for the current process.
func NewLineFormatter(includeFileLine, categoryPrefix bool) *LineFormatter {
	return &LineFormatter{
		IncludeFileLine: includeFileLine,
		CategoryPrefix:  categoryPrefix,
	}
}

// Format renders r followed by a newline. The returned slice is owned by the
// caller.
func (f *LineFormatter) Format(r types.Record) []byte {
	b := lines.Get()
	defer lines.Put(b)
	b.Grow(len(r.Message) + 64)

	b.WriteByte('[')
	b.WriteByte(r.Severity.Glyph())
	b.WriteString(pid)
	b.WriteByte(' ')
	b.WriteString(r.Time.Format(LineTimeFormat))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(r.Thread, 10))
	b.WriteByte(']')

	if f.IncludeFileLine {
		b.WriteByte('(')
		if r.File != "" {
			b.WriteString(filepath.Base(r.File))
		} else {
			b.WriteString("???")
		}
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(r.Line))
		if r.Function != "" {
			b.WriteByte(' ')
			b.WriteString(shortFunction(r.Function))
		}
		b.WriteByte(')')
	}

	b.WriteByte(' ')
	if f.CategoryPrefix && r.Category != "" {
		b.WriteString(r.Category)
		b.WriteString(": ")
	}
	b.WriteString(strings.TrimSuffix(r.Message, "\n"))
	b.WriteByte('\n')
	return bytes.Clone(b.Bytes())
}

// shortFunction drops the import path: "github.com/x/y/pkg.(*T).Run" -> "pkg.(*T).Run".
func shortFunction(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}

var goroutinePrefix = []byte("goroutine ")

// GoroutineID returns the id of the calling goroutine, or 0 if it cannot be
// parsed from the runtime stack header.
func GoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	if i := bytes.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	id, err := strconv.ParseUint(string(s), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
