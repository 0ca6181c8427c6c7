package coordination

import (
	"github.com/levelcode/teamfabric/internal/discovery"
	"github.com/levelcode/teamfabric/internal/labeler"
	"github.com/levelcode/teamfabric/internal/logging"
	"github.com/levelcode/teamfabric/internal/mailbox"
	"github.com/levelcode/teamfabric/internal/maintenance"
)

// coordinatorConfig holds optional configuration for a Coordinator.
type coordinatorConfig struct {
	logger   *logging.Logger
	resolver *discovery.Resolver
	engine   *maintenance.Engine
	labels   *labeler.Labeler
	watches  []watchSpec
}

// Option configures a Coordinator.
type Option func(*coordinatorConfig)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *coordinatorConfig) { c.logger = logger }
}

// WithResolver sets the discovery resolver. If nil, one is built over the
// store.
func WithResolver(r *discovery.Resolver) Option {
	return func(c *coordinatorConfig) { c.resolver = r }
}

// WithEngine sets the maintenance engine. If nil, one is built over the
// store.
func WithEngine(e *maintenance.Engine) Option {
	return func(c *coordinatorConfig) { c.engine = e }
}

// WithLabeler enables background generation of task activity labels.
func WithLabeler(l *labeler.Labeler) Option {
	return func(c *coordinatorConfig) { c.labels = l }
}

// WithInboxWatch registers an inbox watch that Start launches and Stop
// cancels. May be given multiple times.
func WithInboxWatch(teamName, agent string, fn func(mailbox.ProtocolMessage)) Option {
	return func(c *coordinatorConfig) {
		c.watches = append(c.watches, watchSpec{teamName: teamName, agent: agent, fn: fn})
	}
}
