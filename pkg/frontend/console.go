package frontend

import (
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/wayneeseguin/logsink/pkg/types"
)

// Console echoes formatted lines, coloured by severity when the output is a
// terminal.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	colors [types.NumSeverities]*color.Color
	color  bool
}

// NewConsole writes to stderr.
func NewConsole() *Console {
	return NewConsoleWriter(os.Stderr)
}

// NewConsoleWriter writes to w. Colour is enabled only when w is a terminal
// and NO_COLOR is not set.
func NewConsoleWriter(w io.Writer) *Console {
	c := &Console{out: w}
	if f, ok := w.(*os.File); ok && !color.NoColor {
		fd := f.Fd()
		c.color = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
	c.colors = [types.NumSeverities]*color.Color{
		types.SeverityDebug:   color.New(color.Faint),
		types.SeverityInfo:    color.New(color.Reset),
		types.SeverityWarning: color.New(color.FgYellow),
		types.SeverityError:   color.New(color.FgRed),
		types.SeverityFatal:   color.New(color.FgHiRed, color.Bold),
	}
	for _, cl := range c.colors {
		cl.EnableColor()
	}
	return c
}

// SetColor forces colour on or off.
func (c *Console) SetColor(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.color = enabled
}

// Write echoes one line. Write errors are ignored; the console is best
// effort.
func (c *Console) Write(sev types.Severity, line []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.color || !sev.Valid() {
		_, _ = c.out.Write(line)
		return
	}

	// Colour the text but keep the newline outside the escape sequence.
	text := line
	newline := len(text) > 0 && text[len(text)-1] == '\n'
	if newline {
		text = text[:len(text)-1]
	}
	_, _ = c.colors[sev].Fprint(c.out, string(text))
	if newline {
		_, _ = c.out.Write([]byte{'\n'})
	}
}
