package types

import "time"

// Record is one log event as handed over by a front end before formatting.
type Record struct {
	Time     time.Time
	Severity Severity
	Category string
	Message  string

	// Thread identifies the emitting goroutine. Zero when unknown.
	Thread uint64

	// Source location, filled only when file/line output is enabled.
	File     string
	Line     int
	Function string
}
