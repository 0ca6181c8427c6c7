package labeler

import (
	"context"
	"sync"
	"time"

	"github.com/levelcode/teamfabric/internal/logging"
)

const (
	// pendingQueueSize bounds the label request backlog.
	pendingQueueSize = 20

	// processInterval is the minimum spacing between label generations.
	processInterval = 250 * time.Millisecond

	// labelTimeout bounds a single generation. Matters only for plugged
	// clients that do real work.
	labelTimeout = 10 * time.Second
)

// ApplyFunc receives the generated label for a task.
type ApplyFunc func(teamName, taskID, label string)

// request is one queued label generation.
type request struct {
	TeamName string
	TaskID   string
	Subject  string
}

// Labeler generates missing task activity labels in the background.
// Requests are deduplicated per task and processed one at a time.
type Labeler struct {
	client Client
	logger *logging.Logger
	apply  ApplyFunc

	// labeled tracks tasks that already went through a generation pass,
	// keyed "team/taskID".
	labeled map[string]bool

	pending chan request
	done    chan struct{}
	started bool
	mu      sync.RWMutex
}

// Option configures a Labeler.
type Option func(*Labeler)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Labeler) {
		l.logger = logger
	}
}

// New creates a labeler backed by client. Panics if client is nil.
func New(client Client, opts ...Option) *Labeler {
	if client == nil {
		panic("labeler: client is required")
	}
	l := &Labeler{
		client:  client,
		logger:  logging.NopLogger(),
		labeled: make(map[string]bool),
		pending: make(chan request, pendingQueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.WithComponent("labeler")
	return l
}

// OnLabel sets the callback invoked with each generated label.
func (l *Labeler) OnLabel(fn ApplyFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.apply = fn
}

// Start begins the background processor. Subsequent calls are no-ops.
func (l *Labeler) Start() {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()
	go l.processLoop()
}

// Stop shuts the labeler down. Safe to call multiple times.
func (l *Labeler) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}

// Request queues a task for label generation. Non-blocking: when the
// queue is full the request is dropped and the task keeps an empty
// label.
func (l *Labeler) Request(teamName, taskID, subject string) {
	key := labelKey(teamName, taskID)

	l.mu.RLock()
	if l.labeled[key] {
		l.mu.RUnlock()
		return
	}
	l.mu.RUnlock()

	select {
	case l.pending <- request{TeamName: teamName, TaskID: taskID, Subject: subject}:
	default:
		l.logger.Warn("label queue full, request dropped",
			"team", teamName,
			"task_id", taskID)
	}
}

// IsLabeled reports whether the task already went through a generation
// pass.
func (l *Labeler) IsLabeled(teamName, taskID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.labeled[labelKey(teamName, taskID)]
}

// Reset clears the labeled state for a task so a later Request runs
// again. Useful after a subject edit.
func (l *Labeler) Reset(teamName, taskID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.labeled, labelKey(teamName, taskID))
}

func labelKey(teamName, taskID string) string {
	return teamName + "/" + taskID
}

func (l *Labeler) processLoop() {
	ticker := time.NewTicker(processInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case req := <-l.pending:
			l.processOne(req)
		case <-ticker.C:
			// Drain backlog so bursts don't starve behind the interval.
			select {
			case req := <-l.pending:
				l.processOne(req)
			default:
			}
		}
	}
}

func (l *Labeler) processOne(req request) {
	key := labelKey(req.TeamName, req.TaskID)

	// A duplicate may have been queued before the first pass finished.
	l.mu.RLock()
	if l.labeled[key] {
		l.mu.RUnlock()
		return
	}
	l.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), labelTimeout)
	defer cancel()

	label, err := l.client.Label(ctx, req.Subject)
	if err != nil {
		l.logger.Warn("label generation failed",
			"team", req.TeamName,
			"task_id", req.TaskID,
			"error", err.Error())
		// Mark anyway so a bad subject isn't retried forever.
		l.mu.Lock()
		l.labeled[key] = true
		l.mu.Unlock()
		return
	}

	l.mu.Lock()
	l.labeled[key] = true
	apply := l.apply
	l.mu.Unlock()

	l.logger.Debug("generated task label",
		"team", req.TeamName,
		"task_id", req.TaskID,
		"label", label)

	if apply != nil {
		apply(req.TeamName, req.TaskID, label)
	}
}
