// Package logging builds the zerolog loggers shared by the server and the chat client.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a timestamped logger writing to w. Development output is
// human-readable; everything else is JSON.
func New(env string, w io.Writer) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: w != os.Stdout}).
			With().
			Timestamp().
			Logger()
	}
	return zerolog.New(w).
		With().
		Timestamp().
		Logger()
}

// OpenFile opens (or creates) an append-only log file for processes that do
// not own stdout, such as the terminal UI.
func OpenFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}
