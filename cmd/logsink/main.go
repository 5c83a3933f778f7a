// Command logsink exercises and maintains log sink directories.
//
//	logsink run --config settings.yaml
//	logsink prune --dir /var/log/app --max-files 20 --max-age 168h
//	logsink dump-test --dump-dir /var/log/app/dumps
package main

import (
	"fmt"
	"os"
)

// exit is replaced in tests.
var exit = os.Exit

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		exit(1)
	}
}
