// Package event provides a pub-sub event bus for decoupled inter-component
// communication in the team fabric.
//
// This package enables loose coupling between the store, mailbox,
// coordination facade, and ledger by allowing them to communicate through
// events rather than direct method calls. Components can publish events
// without knowing who will receive them, and subscribe to events without
// knowing who will produce them.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//   - [Emitter]: Couples the bus with an analytics sink so one call feeds both
//
// # Event Categories
//
// The package defines two categories of events:
//
// Team Fabric:
//   - [TeamCreatedEvent]: Emitted when a team is created
//   - [TeamDeletedEvent]: Emitted when a team is deleted
//   - [TeammateIdleEvent]: Emitted when a teammate reports idle
//   - [TaskCompletedEvent]: Emitted when a task completes
//   - [PhaseTransitionEvent]: Emitted when a team advances phase
//   - [MessageSentEvent]: Emitted when a message lands in an inbox
//   - [AgentSpawnedEvent]: Emitted when a member joins a team
//
// Backend Credits:
//   - [CreditGrantEvent]: Emitted on an actual grant insert
//   - [CreditConsumedEvent]: Emitted after consumption settles
//   - [SubscriptionBlockEvent]: Emitted when a block grant is issued
//   - [SubscriptionMigratedEvent]: Emitted when grants fold into a subscription
//   - [SubscriptionLimitEvent]: Emitted when a rate limit refuses a block
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Multiple goroutines can publish
// and subscribe concurrently. Handlers are called synchronously and protected
// against panics - a panicking handler will not prevent other handlers from
// being called, and never aborts the mutation that published the event.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	// Subscribe to specific event types
//	bus.Subscribe("team.created", func(e event.Event) {
//	    created := e.(event.TeamCreatedEvent)
//	    log.Printf("Team %s created", created.TeamName)
//	})
//
//	// Subscribe to all events (useful for logging)
//	bus.SubscribeAll(func(e event.Event) {
//	    log.Printf("Event: %s at %v", e.EventType(), e.Timestamp())
//	})
//
//	// Publish events
//	bus.Publish(event.NewTeamCreatedEvent("alpha", "lead-agent-1", 3))
//
//	// Unsubscribe when done
//	id := bus.Subscribe("team.deleted", handler)
//	bus.Unsubscribe(id)
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action":
//   - team.created, team.deleted, team.teammate_idle, team.task_completed
//   - team.phase_transition, team.message_sent, team.agent_spawned
//   - backend.credit_grant, backend.credit_consumed
//   - backend.subscription_block, backend.subscription_migrated,
//     backend.subscription_limit
//
// The names double as analytics event names; see internal/analytics.
package event
