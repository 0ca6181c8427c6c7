package bridge

import (
	"github.com/levelcode/teamfabric/internal/logging"
	"github.com/levelcode/teamfabric/internal/mailbox"
)

// defaultMaxOutstanding bounds concurrent asks per bridge. Zero means
// unbounded.
const defaultMaxOutstanding = 16

// Option configures a Bridge.
type Option func(*config)

type config struct {
	maxOutstanding int
	logger         *logging.Logger
	handler        func(mailbox.ProtocolMessage)
}

// WithLogger sets the logger for the bridge.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithHandler sets the callback for messages that are not matched
// responses: received requests, plain messages, broadcasts, idle and
// completion notices. The handler runs on the watcher goroutine.
func WithHandler(fn func(mailbox.ProtocolMessage)) Option {
	return func(c *config) {
		c.handler = fn
	}
}

// WithMaxOutstanding bounds concurrent asks. Zero removes the bound;
// negative values are clamped to zero.
func WithMaxOutstanding(n int) Option {
	return func(c *config) {
		c.maxOutstanding = n
	}
}
