package common

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

var (
	logger = log.New(os.Stderr, "[edmgate] ", log.LstdFlags|log.Lmicroseconds)

	verbose atomic.Bool
)

// SetOutput redirects the shared logger, typically to a rotating file.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// SetVerbose enables Debugf output.
func SetVerbose(on bool) {
	verbose.Store(on)
}

func Logf(format string, args ...interface{}) {
	logger.Printf(format, args...)
}

// Debugf logs only when verbose output is enabled. Per-record tracing goes
// through here so normal runs stay quiet.
func Debugf(format string, args ...interface{}) {
	if !verbose.Load() {
		return
	}
	logger.Printf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	logger.Fatalf(format, args...)
}
