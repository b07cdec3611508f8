// Package logger builds the zerolog logger shared by the command and the pipeline.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Options selects the log format and level.
type Options struct {
	Verbose bool
	JSON    bool
}

// Level returns debug when verbose, info otherwise.
func (o Options) Level() zerolog.Level {
	if o.Verbose {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// New returns a timestamped logger writing to w. Unless JSON is set, output
// goes through a console writer.
func New(w io.Writer, opts Options) zerolog.Logger {
	if !opts.JSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: w != os.Stderr && w != os.Stdout}
	}

	return zerolog.New(w).
		Level(opts.Level()).
		With().
		Timestamp().
		Logger()
}

// NewConsole logs to stderr, leaving stdout to progress bars and the summary.
func NewConsole(opts Options) zerolog.Logger {
	return New(os.Stderr, opts)
}
