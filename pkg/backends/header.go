package backends

import (
	"bytes"
	"os"
	"time"
)

// HeaderTimeFormat is the layout of the creation time in a file header.
const HeaderTimeFormat = "2006/01/02 15:04:05"

// UnknownHost is written in the header when the hostname cannot be read.
const UnknownHost = "(unknown)"

// hostname is replaced in tests.
var hostname = os.Hostname

// Header returns the three header lines written at the top of every new log
// file. The line-format legend includes the file/line field when fileLine is
// set.
func Header(created time.Time, host string, fileLine bool) []byte {
	if host == "" {
		host = UnknownHost
	}

	var b bytes.Buffer
	b.WriteString("Log file created at: ")
	b.WriteString(created.Format(HeaderTimeFormat))
	b.WriteString("\nRunning on machine: ")
	b.WriteString(host)
	b.WriteString("\nLog line format: [DIWEF]pid hh:mm:ss.zzz ")
	if fileLine {
		b.WriteString("threadid](file:line function) msg\n")
	} else {
		b.WriteString("threadid] msg\n")
	}
	return b.Bytes()
}

func localHost() string {
	host, err := hostname()
	if err != nil || host == "" {
		return UnknownHost
	}
	return host
}
