package mailbox

import (
	"time"

	"github.com/levelcode/teamfabric/internal/event"
	"github.com/levelcode/teamfabric/internal/logging"
)

// Option configures a Fabric.
type Option func(*Fabric)

// WithEmitter attaches an event emitter. When set, a team.message_sent
// event is published (and captured by the analytics sink) after every
// successful Send.
func WithEmitter(em *event.Emitter) Option {
	return func(f *Fabric) {
		f.emitter = em
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *logging.Logger) Option {
	return func(f *Fabric) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithDebounce sets how long a watcher coalesces filesystem events before
// reading the inbox. Zero or negative values are ignored.
func WithDebounce(d time.Duration) Option {
	return func(f *Fabric) {
		if d > 0 {
			f.debounce = d
		}
	}
}

// WithPollInterval sets the watcher's fallback poll cadence. Zero or
// negative values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(f *Fabric) {
		if d > 0 {
			f.pollInterval = d
		}
	}
}
