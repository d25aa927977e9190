package sqlite

import "time"

// Options configures the SQLite-backed store.
type Options struct {
	Path        string
	Table       string
	BusyTimeout time.Duration
	now         func() time.Time
}

type Option func(*Options)

// WithPath sets the database file. ":memory:" keeps the store in process.
func WithPath(path string) Option {
	return func(o *Options) {
		if path != "" {
			o.Path = path
		}
	}
}

// WithTable overrides the table holding entries.
func WithTable(name string) Option {
	return func(o *Options) {
		if name != "" {
			o.Table = name
		}
	}
}

// WithBusyTimeout controls how long writers wait on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.BusyTimeout = d
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.now = now
		}
	}
}

func defaultOptions() Options {
	return Options{
		Path:        "aura-cache.db",
		Table:       "kv_entries",
		BusyTimeout: 5 * time.Second,
		now:         time.Now,
	}
}
