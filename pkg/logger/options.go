package logger

import (
	"io"
	"log/slog"
)

// Option configures a logger built by New.
type Option func(*config)

// WithDebug lowers the level to Debug. The relay logs dropped upstream lines
// and skipped payloads at this level.
func WithDebug(debug bool) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithPretty selects the colorized charmbracelet/log console handler.
func WithPretty(pretty bool) Option {
	return func(c *config) {
		c.pretty = pretty
	}
}

// WithJSON selects slog's JSON handler. It wins over WithPretty.
func WithJSON(json bool) Option {
	return func(c *config) {
		c.json = json
	}
}

// WithWriter sends records to w instead of os.Stdout. A nil w is ignored.
func WithWriter(w io.Writer) Option {
	return WithWriters(w)
}

// WithWriters sends every record to each non-nil writer, all in the same
// format.
func WithWriters(ws ...io.Writer) Option {
	return func(c *config) {
		kept := make([]io.Writer, 0, len(ws))
		for _, w := range ws {
			if w != nil {
				kept = append(kept, w)
			}
		}
		if len(kept) > 0 {
			c.writers = kept
		}
	}
}

// WithSource annotates records with the calling file and line.
func WithSource(source bool) Option {
	return func(c *config) {
		c.source = source
	}
}
