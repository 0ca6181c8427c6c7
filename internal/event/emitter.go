package event

import "github.com/levelcode/teamfabric/internal/analytics"

// Emitter couples the bus with an analytics sink. Each Emit helper
// publishes the typed event to in-process subscribers and records the
// same event name through the sink. Capture failures never propagate to
// the mutation path that triggered the emit.
type Emitter struct {
	bus  *Bus
	sink analytics.Sink
}

// NewEmitter creates an Emitter. A nil bus gets a fresh one; a nil sink
// is replaced with analytics.NopSink.
func NewEmitter(bus *Bus, sink analytics.Sink) *Emitter {
	if bus == nil {
		bus = NewBus()
	}
	if sink == nil {
		sink = analytics.NopSink{}
	}
	return &Emitter{bus: bus, sink: sink}
}

// Bus returns the underlying event bus.
func (em *Emitter) Bus() *Bus { return em.bus }

// Flush flushes the analytics sink.
func (em *Emitter) Flush() error { return em.sink.Flush() }

// emit publishes the event and captures it. Telemetry is best-effort;
// a sink failure must not fail the caller.
func (em *Emitter) emit(ev Event, distinctID string, props map[string]any) {
	em.bus.Publish(ev)
	_ = em.sink.Capture(ev.EventType(), distinctID, props)
}

// EmitTeamCreated publishes team.created.
func (em *Emitter) EmitTeamCreated(teamName, leadAgentID string, memberCount int) {
	em.emit(NewTeamCreatedEvent(teamName, leadAgentID, memberCount), teamName, map[string]any{
		"lead_agent_id": leadAgentID,
		"member_count":  memberCount,
	})
}

// EmitTeamDeleted publishes team.deleted.
func (em *Emitter) EmitTeamDeleted(teamName string) {
	em.emit(NewTeamDeletedEvent(teamName), teamName, nil)
}

// EmitTeammateIdle publishes team.teammate_idle.
func (em *Emitter) EmitTeammateIdle(teamName, agentName, summary, completedTaskID string) {
	em.emit(NewTeammateIdleEvent(teamName, agentName, summary, completedTaskID), teamName, map[string]any{
		"agent_name":        agentName,
		"summary":           summary,
		"completed_task_id": completedTaskID,
	})
}

// EmitTaskCompleted publishes team.task_completed.
func (em *Emitter) EmitTaskCompleted(teamName, taskID, taskSubject, completedBy string) {
	em.emit(NewTaskCompletedEvent(teamName, taskID, taskSubject, completedBy), teamName, map[string]any{
		"task_id":      taskID,
		"task_subject": taskSubject,
		"completed_by": completedBy,
	})
}

// EmitPhaseTransition publishes team.phase_transition.
func (em *Emitter) EmitPhaseTransition(teamName, from, to string) {
	em.emit(NewPhaseTransitionEvent(teamName, from, to), teamName, map[string]any{
		"from": from,
		"to":   to,
	})
}

// EmitMessageSent publishes team.message_sent.
func (em *Emitter) EmitMessageSent(teamName, from, to, messageType string) {
	em.emit(NewMessageSentEvent(teamName, from, to, messageType), teamName, map[string]any{
		"from":         from,
		"to":           to,
		"message_type": messageType,
	})
}

// EmitAgentSpawned publishes team.agent_spawned.
func (em *Emitter) EmitAgentSpawned(teamName, agentName, agentID, role string) {
	em.emit(NewAgentSpawnedEvent(teamName, agentName, agentID, role), teamName, map[string]any{
		"agent_name": agentName,
		"agent_id":   agentID,
		"role":       role,
	})
}

// EmitCreditGrant publishes backend.credit_grant.
func (em *Emitter) EmitCreditGrant(principal, operationID, grantType string, amount int64) {
	em.emit(NewCreditGrantEvent(principal, operationID, grantType, amount), principal, map[string]any{
		"operation_id": operationID,
		"grant_type":   grantType,
		"amount":       amount,
	})
}

// EmitCreditConsumed publishes backend.credit_consumed.
func (em *Emitter) EmitCreditConsumed(principal string, consumed, fromPurchased int64) {
	em.emit(NewCreditConsumedEvent(principal, consumed, fromPurchased), principal, map[string]any{
		"consumed":       consumed,
		"from_purchased": fromPurchased,
	})
}

// EmitSubscriptionBlock publishes backend.subscription_block.
func (em *Emitter) EmitSubscriptionBlock(principal, operationID string, amount int64) {
	em.emit(NewSubscriptionBlockEvent(principal, operationID, amount), principal, map[string]any{
		"operation_id": operationID,
		"amount":       amount,
	})
}

// EmitSubscriptionMigrated publishes backend.subscription_migrated.
func (em *Emitter) EmitSubscriptionMigrated(principal, subscriptionID string, amount int64) {
	em.emit(NewSubscriptionMigratedEvent(principal, subscriptionID, amount), principal, map[string]any{
		"subscription_id": subscriptionID,
		"amount":          amount,
	})
}

// EmitSubscriptionLimit publishes backend.subscription_limit.
func (em *Emitter) EmitSubscriptionLimit(principal, reason string) {
	em.emit(NewSubscriptionLimitEvent(principal, reason), principal, map[string]any{
		"reason": reason,
	})
}
