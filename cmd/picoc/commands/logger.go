package commands

import (
	"log"
	"os"
)

// newLogger tags every log line with a compile-session id so concurrent
// picoc watch builds (and overlapping build invocations in scripts) can be
// told apart in the log stream.
func newLogger(sessionID string) *log.Logger {
	return log.New(os.Stderr, "picoc["+sessionID[:8]+"] ", log.LstdFlags)
}
