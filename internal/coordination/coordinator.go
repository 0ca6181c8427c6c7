package coordination

import (
	"context"
	"errors"
	"sync"

	"github.com/levelcode/teamfabric/internal/discovery"
	"github.com/levelcode/teamfabric/internal/event"
	"github.com/levelcode/teamfabric/internal/labeler"
	"github.com/levelcode/teamfabric/internal/logging"
	"github.com/levelcode/teamfabric/internal/mailbox"
	"github.com/levelcode/teamfabric/internal/maintenance"
	"github.com/levelcode/teamfabric/internal/store"
	"github.com/levelcode/teamfabric/internal/team"
)

// Config holds required dependencies for creating a Coordinator.
type Config struct {
	Store   *store.Store
	Fabric  *mailbox.Fabric
	Emitter *event.Emitter
}

// watchSpec is one inbox watch the Coordinator starts and stops with its
// own lifecycle.
type watchSpec struct {
	teamName string
	agent    string
	fn       func(mailbox.ProtocolMessage)
}

// Coordinator wires store, fabric, emitter, resolver, and maintenance
// engine together and applies phase gating in front of every team-scoped
// mutation.
type Coordinator struct {
	mu      sync.RWMutex
	started bool
	cancel  context.CancelFunc

	st       *store.Store
	fabric   *mailbox.Fabric
	emitter  *event.Emitter
	resolver *discovery.Resolver
	engine   *maintenance.Engine
	labels   *labeler.Labeler
	logger   *logging.Logger

	watches      []watchSpec
	watchCancels []func()
}

// New creates a Coordinator from required dependencies plus options.
func New(cfg Config, opts ...Option) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, errors.New("coordination: Store is required")
	}
	if cfg.Fabric == nil {
		return nil, errors.New("coordination: Fabric is required")
	}
	if cfg.Emitter == nil {
		return nil, errors.New("coordination: Emitter is required")
	}

	cc := &coordinatorConfig{}
	for _, opt := range opts {
		opt(cc)
	}

	logger := cc.logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	resolver := cc.resolver
	if resolver == nil {
		resolver = discovery.New(cfg.Store)
	}
	engine := cc.engine
	if engine == nil {
		engine = maintenance.New(cfg.Store)
	}

	return &Coordinator{
		st:       cfg.Store,
		fabric:   cfg.Fabric,
		emitter:  cfg.Emitter,
		resolver: resolver,
		engine:   engine,
		labels:   cc.labels,
		logger:   logger.WithComponent("coordination"),
		watches:  cc.watches,
	}, nil
}

// Store returns the backing team store.
func (c *Coordinator) Store() *store.Store { return c.st }

// Fabric returns the message fabric.
func (c *Coordinator) Fabric() *mailbox.Fabric { return c.fabric }

// Emitter returns the hook emitter.
func (c *Coordinator) Emitter() *event.Emitter { return c.emitter }

// Bus returns the hook bus behind the emitter.
func (c *Coordinator) Bus() *event.Bus { return c.emitter.Bus() }

// Resolver returns the agent discovery resolver.
func (c *Coordinator) Resolver() *discovery.Resolver { return c.resolver }

// Engine returns the maintenance engine.
func (c *Coordinator) Engine() *maintenance.Engine { return c.engine }

// Start launches the background pieces: the label generator and any
// configured inbox watchers. Returns an error if already started.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return errors.New("coordination: already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.started = true

	if c.labels != nil {
		c.labels.OnLabel(c.applyLabel)
		c.labels.Start()
	}

	c.watchCancels = c.watchCancels[:0]
	for _, w := range c.watches {
		stop, err := c.fabric.Watch(ctx, w.teamName, w.agent, w.fn)
		if err != nil {
			c.stopLocked()
			return err
		}
		c.watchCancels = append(c.watchCancels, stop)
	}

	return nil
}

// Stop shuts everything down in reverse start order. It is idempotent.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	return nil
}

func (c *Coordinator) stopLocked() {
	if !c.started {
		return
	}
	for i := len(c.watchCancels) - 1; i >= 0; i-- {
		c.watchCancels[i]()
	}
	c.watchCancels = c.watchCancels[:0]
	if c.labels != nil {
		c.labels.Stop()
	}
	c.cancel()
	c.started = false
}

// Running returns whether the coordinator is currently started.
func (c *Coordinator) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}

// applyLabel patches a generated activity label onto its task, unless
// someone set one in the meantime.
func (c *Coordinator) applyLabel(teamName, taskID, label string) {
	t, err := c.st.GetTask(teamName, taskID)
	if err != nil || t == nil {
		c.logger.Debug("label target gone", "team", teamName, "task_id", taskID)
		return
	}
	if t.ActiveForm != "" {
		return
	}
	if _, err := c.st.UpdateTask(teamName, taskID, team.TaskPatch{ActiveForm: &label}); err != nil {
		c.logger.Warn("apply task label failed",
			"team", teamName,
			"task_id", taskID,
			"error", err.Error())
	}
}
