// Package logger builds the validator's zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// sampleEvery is the sampling rate applied to debug and info events when sampling is on.
const sampleEvery = 5

// New returns a logger writing to stdout.
// Warnings and errors bypass the sampler so a failing round is never hidden.
func New(logLevel int, logFormat string, logSampler bool) zerolog.Logger {
	return newWithWriter(os.Stdout, logLevel, logFormat, logSampler)
}

func newWithWriter(out io.Writer, logLevel int, logFormat string, logSampler bool) zerolog.Logger {
	l := zerolog.New(sink(out, logFormat)).
		Level(zerolog.Level(logLevel)).
		With().
		Timestamp().
		Str("service", "palaidnd").
		Logger()

	if !logSampler {
		return l
	}
	return l.Sample(zerolog.LevelSampler{
		DebugSampler: &zerolog.BasicSampler{N: sampleEvery},
		InfoSampler:  &zerolog.BasicSampler{N: sampleEvery},
	})
}

func sink(out io.Writer, format string) io.Writer {
	if format == "json" {
		return out
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    out != os.Stdout,
	}
}
