// Package analytics defines the outbound telemetry contract.
//
// The fabric records product events through a Sink. Real implementations
// are supplied by the embedding application; this package ships a no-op
// sink for when telemetry is disabled and an in-memory sink for tests.
package analytics

import "sync"

// Event names captured through a Sink. Bus events published by
// internal/event reuse these names so in-process subscribers and external
// capture stay aligned.
const (
	EventTeamCreated          = "team.created"
	EventTeamDeleted          = "team.deleted"
	EventTeammateIdle         = "team.teammate_idle"
	EventTaskCompleted        = "team.task_completed"
	EventPhaseTransition      = "team.phase_transition"
	EventMessageSent          = "team.message_sent"
	EventAgentSpawned         = "team.agent_spawned"
	EventCreditGrant          = "backend.credit_grant"
	EventCreditConsumed       = "backend.credit_consumed"
	EventSubscriptionBlock    = "backend.subscription_block"
	EventSubscriptionMigrated = "backend.subscription_migrated"
	EventSubscriptionLimit    = "backend.subscription_limit"
)

// Sink receives analytics events.
//
// Capture records a single event for a distinct ID with optional
// properties. Flush forces any buffered events out; callers should invoke
// it before process exit.
type Sink interface {
	Capture(event, distinctID string, props map[string]any) error
	Flush() error
}

// NopSink discards all events. It is the default when telemetry is
// disabled.
type NopSink struct{}

// Capture implements Sink.
func (NopSink) Capture(event, distinctID string, props map[string]any) error { return nil }

// Flush implements Sink.
func (NopSink) Flush() error { return nil }

// Capture is a single recorded event.
type Capture struct {
	Event      string
	DistinctID string
	Props      map[string]any
}

// MemorySink records captures in memory. Intended for tests.
type MemorySink struct {
	mu         sync.Mutex
	captures   []Capture
	flushCount int
	captureErr error
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Capture implements Sink.
func (s *MemorySink) Capture(event, distinctID string, props map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.captureErr != nil {
		return s.captureErr
	}
	s.captures = append(s.captures, Capture{
		Event:      event,
		DistinctID: distinctID,
		Props:      props,
	})
	return nil
}

// Flush implements Sink.
func (s *MemorySink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushCount++
	return nil
}

// Captures returns a copy of all recorded captures.
func (s *MemorySink) Captures() []Capture {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Capture, len(s.captures))
	copy(out, s.captures)
	return out
}

// CaptureCount returns the number of recorded captures.
func (s *MemorySink) CaptureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.captures)
}

// FlushCount returns how many times Flush has been called.
func (s *MemorySink) FlushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushCount
}

// FailCaptureWith makes subsequent Capture calls return err.
// Pass nil to restore normal operation.
func (s *MemorySink) FailCaptureWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captureErr = err
}
