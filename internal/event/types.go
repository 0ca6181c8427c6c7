package event

import (
	"time"

	"github.com/levelcode/teamfabric/internal/analytics"
)

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "team.created", "backend.credit_grant")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Team Lifecycle Events
// -----------------------------------------------------------------------------

// TeamCreatedEvent is emitted when a team is created.
type TeamCreatedEvent struct {
	baseEvent
	TeamName    string // Team identifier
	LeadAgentID string // Agent ID of the team lead
	MemberCount int    // Number of members at creation time
}

// NewTeamCreatedEvent creates a TeamCreatedEvent.
func NewTeamCreatedEvent(teamName, leadAgentID string, memberCount int) TeamCreatedEvent {
	return TeamCreatedEvent{
		baseEvent:   newBaseEvent(analytics.EventTeamCreated),
		TeamName:    teamName,
		LeadAgentID: leadAgentID,
		MemberCount: memberCount,
	}
}

// TeamDeletedEvent is emitted when a team and its state are removed.
type TeamDeletedEvent struct {
	baseEvent
	TeamName string // Team identifier
}

// NewTeamDeletedEvent creates a TeamDeletedEvent.
func NewTeamDeletedEvent(teamName string) TeamDeletedEvent {
	return TeamDeletedEvent{
		baseEvent: newBaseEvent(analytics.EventTeamDeleted),
		TeamName:  teamName,
	}
}

// -----------------------------------------------------------------------------
// Teammate Events
// -----------------------------------------------------------------------------

// TeammateIdleEvent is emitted when a teammate reports it has gone idle.
type TeammateIdleEvent struct {
	baseEvent
	TeamName        string // Team the agent belongs to
	AgentName       string // Member name of the idle agent
	Summary         string // Optional summary of completed work
	CompletedTaskID string // Optional ID of the task finished before idling
}

// NewTeammateIdleEvent creates a TeammateIdleEvent.
func NewTeammateIdleEvent(teamName, agentName, summary, completedTaskID string) TeammateIdleEvent {
	return TeammateIdleEvent{
		baseEvent:       newBaseEvent(analytics.EventTeammateIdle),
		TeamName:        teamName,
		AgentName:       agentName,
		Summary:         summary,
		CompletedTaskID: completedTaskID,
	}
}

// TaskCompletedEvent is emitted when a task reaches completed status.
type TaskCompletedEvent struct {
	baseEvent
	TeamName    string // Team that owns the task
	TaskID      string // Task identifier
	TaskSubject string // Task subject line
	CompletedBy string // Member name that finished the task
}

// NewTaskCompletedEvent creates a TaskCompletedEvent.
func NewTaskCompletedEvent(teamName, taskID, taskSubject, completedBy string) TaskCompletedEvent {
	return TaskCompletedEvent{
		baseEvent:   newBaseEvent(analytics.EventTaskCompleted),
		TeamName:    teamName,
		TaskID:      taskID,
		TaskSubject: taskSubject,
		CompletedBy: completedBy,
	}
}

// AgentSpawnedEvent is emitted when a new member joins a team.
type AgentSpawnedEvent struct {
	baseEvent
	TeamName  string // Team the agent joined
	AgentName string // Member name
	AgentID   string // Agent identifier
	Role      string // Resolved role after repair
}

// NewAgentSpawnedEvent creates an AgentSpawnedEvent.
func NewAgentSpawnedEvent(teamName, agentName, agentID, role string) AgentSpawnedEvent {
	return AgentSpawnedEvent{
		baseEvent: newBaseEvent(analytics.EventAgentSpawned),
		TeamName:  teamName,
		AgentName: agentName,
		AgentID:   agentID,
		Role:      role,
	}
}

// -----------------------------------------------------------------------------
// Phase Events
// -----------------------------------------------------------------------------

// PhaseTransitionEvent is emitted when a team advances to its next phase.
// Phases are carried as plain strings to keep this package free of domain
// imports.
type PhaseTransitionEvent struct {
	baseEvent
	TeamName string // Team that transitioned
	From     string // Previous phase
	To       string // New current phase
}

// NewPhaseTransitionEvent creates a PhaseTransitionEvent.
func NewPhaseTransitionEvent(teamName, from, to string) PhaseTransitionEvent {
	return PhaseTransitionEvent{
		baseEvent: newBaseEvent(analytics.EventPhaseTransition),
		TeamName:  teamName,
		From:      from,
		To:        to,
	}
}

// -----------------------------------------------------------------------------
// Messaging Events
// -----------------------------------------------------------------------------

// MessageSentEvent is emitted after a message lands in a recipient inbox.
type MessageSentEvent struct {
	baseEvent
	TeamName    string // Team the message belongs to
	From        string // Sender member name
	To          string // Recipient member name
	MessageType string // Protocol message type (e.g. "message", "broadcast")
}

// NewMessageSentEvent creates a MessageSentEvent.
func NewMessageSentEvent(teamName, from, to, messageType string) MessageSentEvent {
	return MessageSentEvent{
		baseEvent:   newBaseEvent(analytics.EventMessageSent),
		TeamName:    teamName,
		From:        from,
		To:          to,
		MessageType: messageType,
	}
}

// -----------------------------------------------------------------------------
// Backend Credit Events
// -----------------------------------------------------------------------------

// CreditGrantEvent is emitted when a credit grant is actually inserted.
// Idempotent replays that hit an existing operation ID do not emit.
type CreditGrantEvent struct {
	baseEvent
	Principal   string // "user:<id>" or "org:<id>"
	OperationID string // Idempotency key of the grant
	GrantType   string // Grant type (free, purchase, subscription, ...)
	Amount      int64  // Credits granted after debt clearing
}

// NewCreditGrantEvent creates a CreditGrantEvent.
func NewCreditGrantEvent(principal, operationID, grantType string, amount int64) CreditGrantEvent {
	return CreditGrantEvent{
		baseEvent:   newBaseEvent(analytics.EventCreditGrant),
		Principal:   principal,
		OperationID: operationID,
		GrantType:   grantType,
		Amount:      amount,
	}
}

// CreditConsumedEvent is emitted after a consumption settles against the
// principal's grants.
type CreditConsumedEvent struct {
	baseEvent
	Principal     string // "user:<id>" or "org:<id>"
	Consumed      int64  // Total credits consumed
	FromPurchased int64  // Portion drawn from purchase-type grants
}

// NewCreditConsumedEvent creates a CreditConsumedEvent.
func NewCreditConsumedEvent(principal string, consumed, fromPurchased int64) CreditConsumedEvent {
	return CreditConsumedEvent{
		baseEvent:     newBaseEvent(analytics.EventCreditConsumed),
		Principal:     principal,
		Consumed:      consumed,
		FromPurchased: fromPurchased,
	}
}

// SubscriptionBlockEvent is emitted when a fresh subscription block grant
// is inserted.
type SubscriptionBlockEvent struct {
	baseEvent
	Principal   string // "user:<id>" or "org:<id>"
	OperationID string // "block-<uuid>" idempotency key
	Amount      int64  // Credits in the block
}

// NewSubscriptionBlockEvent creates a SubscriptionBlockEvent.
func NewSubscriptionBlockEvent(principal, operationID string, amount int64) SubscriptionBlockEvent {
	return SubscriptionBlockEvent{
		baseEvent:   newBaseEvent(analytics.EventSubscriptionBlock),
		Principal:   principal,
		OperationID: operationID,
		Amount:      amount,
	}
}

// SubscriptionMigratedEvent is emitted when pre-existing grants are folded
// into a new subscription's billing period.
type SubscriptionMigratedEvent struct {
	baseEvent
	Principal      string // "user:<id>" or "org:<id>"
	SubscriptionID string // External subscription identifier
	Amount         int64  // Sum of migrated credits
}

// NewSubscriptionMigratedEvent creates a SubscriptionMigratedEvent.
func NewSubscriptionMigratedEvent(principal, subscriptionID string, amount int64) SubscriptionMigratedEvent {
	return SubscriptionMigratedEvent{
		baseEvent:      newBaseEvent(analytics.EventSubscriptionMigrated),
		Principal:      principal,
		SubscriptionID: subscriptionID,
		Amount:         amount,
	}
}

// SubscriptionLimitEvent is emitted when a block grant is refused by a
// rate limit. Reason is "weekly_limit" or "block_exhausted"; weekly_limit
// dominates when both apply.
type SubscriptionLimitEvent struct {
	baseEvent
	Principal string // "user:<id>" or "org:<id>"
	Reason    string // Which limit fired
}

// NewSubscriptionLimitEvent creates a SubscriptionLimitEvent.
func NewSubscriptionLimitEvent(principal, reason string) SubscriptionLimitEvent {
	return SubscriptionLimitEvent{
		baseEvent: newBaseEvent(analytics.EventSubscriptionLimit),
		Principal: principal,
		Reason:    reason,
	}
}
