package bridge

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/levelcode/teamfabric/internal/logging"
	"github.com/levelcode/teamfabric/internal/mailbox"
)

// IsRequest reports whether the message type opens a request/response
// exchange.
func IsRequest(t mailbox.MessageType) bool {
	switch t {
	case mailbox.TypeShutdownRequest, mailbox.TypePlanApprovalRequest:
		return true
	default:
		return false
	}
}

// IsResponse reports whether the message type answers a request.
func IsResponse(t mailbox.MessageType) bool {
	switch t {
	case mailbox.TypeShutdownApproved, mailbox.TypeShutdownRejected, mailbox.TypePlanApprovalResponse:
		return true
	default:
		return false
	}
}

// Bridge matches responses arriving in one agent's inbox to the requests
// that asked for them, and holds received requests until they are
// answered.
type Bridge struct {
	fabric   *mailbox.Fabric
	teamName string
	agent    string
	logger   *logging.Logger
	limit    *limiter
	handler  func(mailbox.ProtocolMessage)

	mu          sync.Mutex
	started     bool
	closed      bool
	watchCancel func()
	waiters     map[string]chan mailbox.ProtocolMessage
	pending     map[string]mailbox.ProtocolMessage
}

// New creates a Bridge for one agent's inbox. The fabric must be non-nil
// and the team and agent names non-empty; passing bad wiring panics early.
func New(fabric *mailbox.Fabric, teamName, agent string, opts ...Option) *Bridge {
	if fabric == nil {
		panic("bridge: fabric must not be nil")
	}
	if teamName == "" || agent == "" {
		panic("bridge: team and agent names are required")
	}

	cfg := &config{
		maxOutstanding: defaultMaxOutstanding,
		logger:         logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}

	return &Bridge{
		fabric:   fabric,
		teamName: teamName,
		agent:    agent,
		logger:   cfg.logger.WithComponent("bridge").WithTeam(teamName).WithAgent(agent),
		limit:    newLimiter(cfg.maxOutstanding),
		handler:  cfg.handler,
		waiters:  make(map[string]chan mailbox.ProtocolMessage),
		pending:  make(map[string]mailbox.ProtocolMessage),
	}
}

// Start begins pumping the agent's inbox through the fabric watcher. It
// returns immediately; route runs on the watcher's goroutine.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return fmt.Errorf("bridge: already started")
	}

	cancel, err := b.fabric.Watch(ctx, b.teamName, b.agent, b.route)
	if err != nil {
		return err
	}
	b.watchCancel = cancel
	b.started = true
	b.closed = false
	b.logger.Debug("bridge started")
	return nil
}

// Stop cancels the watcher and fails every outstanding Ask. Pending
// inbound requests survive a Stop; they live until answered or dropped
// with the bridge. Stop is idempotent.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return
	}
	b.started = false
	b.closed = true
	if b.watchCancel != nil {
		b.watchCancel()
		b.watchCancel = nil
	}
	for id, ch := range b.waiters {
		close(ch)
		delete(b.waiters, id)
	}
	b.logger.Debug("bridge stopped")
}

// Ask sends a request message to another agent and blocks until the
// response echoing its request id arrives, the context is done, or the
// bridge stops. The message must be a request variant with its request id
// already set (the New* constructors do this).
func (b *Bridge) Ask(ctx context.Context, to string, msg mailbox.ProtocolMessage) (mailbox.ProtocolMessage, error) {
	if err := msg.Validate(); err != nil {
		return mailbox.ProtocolMessage{}, err
	}
	if !IsRequest(msg.Type) {
		return mailbox.ProtocolMessage{}, fmt.Errorf("bridge: %q is not a request type", msg.Type)
	}

	if err := b.limit.Acquire(ctx); err != nil {
		return mailbox.ProtocolMessage{}, err
	}
	defer b.limit.Release()

	ch, err := b.register(msg.RequestID)
	if err != nil {
		return mailbox.ProtocolMessage{}, err
	}

	if err := b.fabric.Send(b.teamName, to, msg); err != nil {
		b.unregister(msg.RequestID)
		return mailbox.ProtocolMessage{}, err
	}
	b.logger.Debug("request sent", "to", to, "type", string(msg.Type), "requestId", msg.RequestID)

	select {
	case <-ctx.Done():
		b.unregister(msg.RequestID)
		return mailbox.ProtocolMessage{}, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return mailbox.ProtocolMessage{}, fmt.Errorf("bridge: stopped while waiting for %s", msg.RequestID)
		}
		return resp, nil
	}
}

// Pending returns the received requests that have not been answered yet,
// oldest first.
func (b *Bridge) Pending() []mailbox.ProtocolMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]mailbox.ProtocolMessage, 0, len(b.pending))
	for _, msg := range b.pending {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].RequestID < out[j].RequestID
	})
	return out
}

// Respond answers a pending inbound request. The response must be a
// response variant echoing the request id; it is delivered to the inbox
// of the agent that sent the request.
func (b *Bridge) Respond(resp mailbox.ProtocolMessage) error {
	if err := resp.Validate(); err != nil {
		return err
	}
	if !IsResponse(resp.Type) {
		return fmt.Errorf("bridge: %q is not a response type", resp.Type)
	}

	b.mu.Lock()
	req, ok := b.pending[resp.RequestID]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("bridge: no pending request %s", resp.RequestID)
	}

	if err := b.fabric.Send(b.teamName, req.From, resp); err != nil {
		return err
	}

	b.mu.Lock()
	delete(b.pending, resp.RequestID)
	b.mu.Unlock()
	b.logger.Debug("request answered", "to", req.From, "type", string(resp.Type), "requestId", resp.RequestID)
	return nil
}

// Outstanding returns the number of asks currently waiting for responses.
func (b *Bridge) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters)
}

// route classifies one inbox message. Responses resolve their waiter,
// requests park in the pending set, and everything else goes to the
// handler.
func (b *Bridge) route(msg mailbox.ProtocolMessage) {
	switch {
	case IsResponse(msg.Type):
		b.mu.Lock()
		ch, ok := b.waiters[msg.RequestID]
		if ok {
			delete(b.waiters, msg.RequestID)
		}
		b.mu.Unlock()
		if ok {
			ch <- msg
			return
		}
		// A response nobody is waiting for: the asker timed out or the
		// message was replayed. Hand it to the handler rather than drop
		// it silently.
		b.logger.Debug("unmatched response", "type", string(msg.Type), "requestId", msg.RequestID)
		b.passthrough(msg)

	case IsRequest(msg.Type):
		b.mu.Lock()
		b.pending[msg.RequestID] = msg
		b.mu.Unlock()
		b.logger.Debug("request received", "from", msg.From, "type", string(msg.Type), "requestId", msg.RequestID)
		b.passthrough(msg)

	default:
		b.passthrough(msg)
	}
}

func (b *Bridge) passthrough(msg mailbox.ProtocolMessage) {
	if b.handler != nil {
		b.handler(msg)
	}
}

// register installs a waiter channel for a request id. The channel is
// buffered so route never blocks on a slow asker.
func (b *Bridge) register(requestID string) (chan mailbox.ProtocolMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bridge: stopped")
	}
	if _, exists := b.waiters[requestID]; exists {
		return nil, fmt.Errorf("bridge: request %s already outstanding", requestID)
	}
	ch := make(chan mailbox.ProtocolMessage, 1)
	b.waiters[requestID] = ch
	return ch, nil
}

func (b *Bridge) unregister(requestID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.waiters, requestID)
}
