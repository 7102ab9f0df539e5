// Package logger builds *log.Logger values for libraries that only accept the
// standard logger, such as the shoutrrr router.
package logger

import (
	"io"
	"log"
	"log/slog"
	"os"
)

type options struct {
	out     io.Writer
	flags   int
	handler slog.Handler
	level   slog.Level
}

// Option adjusts a logger built by New.
type Option func(*options)

// WithWriter sends plain output to w instead of stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithFlags replaces the default log flags for plain output.
func WithFlags(flags int) Option {
	return func(o *options) { o.flags = flags }
}

// WithHandler routes every line into h as a record at level, tagged with the component.
func WithHandler(h slog.Handler, level slog.Level) Option {
	return func(o *options) {
		o.handler = h
		o.level = level
	}
}

// New returns a logger for component. Without WithHandler it writes prefixed
// lines; with it the lines become structured records.
func New(component string, opts ...Option) *log.Logger {
	o := options{out: os.Stdout, flags: log.LstdFlags | log.Lshortfile}
	for _, opt := range opts {
		opt(&o)
	}
	if o.handler != nil {
		return slog.NewLogLogger(o.handler.WithAttrs([]slog.Attr{slog.String("component", component)}), o.level)
	}
	return log.New(o.out, "["+component+"] ", o.flags)
}
