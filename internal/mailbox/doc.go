// Package mailbox provides typed inter-agent messaging for teams.
//
// Agents on a team coordinate through per-recipient inboxes: idle
// notifications, task completions, shutdown negotiation, plan approvals,
// and free-form direct or broadcast text. The mailbox package defines the
// message protocol and a Fabric facade that validates, delivers, and
// watches messages; persistence and locking live in the team store.
//
// # Architecture
//
// Each member's inbox is a single JSON array file owned by the store:
//
//	<root>/teams/{team}/inboxes/{agent}.json
//
// Senders append under the inbox's sidecar lock, so concurrent producers
// linearize without losing messages. Readers never take the lock; a torn
// read fails validation and is retried. The queue is append-only from the
// protocol's perspective and is explicitly cleared by its recipient after
// processing (read-and-clear discipline).
//
// # Main Types
//
//   - [ProtocolMessage]: Tagged union of every message variant
//   - [MessageType]: Enumeration of the protocol variants
//   - [Fabric]: Send, Broadcast, Read, Clear, and Watch over a store
//   - [FilterOptions]: Display-time filtering for formatted output
//
// # Message Types
//
//   - [TypeIdleNotification]: An agent reports it has gone idle
//   - [TypeTaskCompleted]: A task reached completed status
//   - [TypeShutdownRequest]: Ask permission to shut down
//   - [TypeShutdownApproved]: Grant a shutdown request
//   - [TypeShutdownRejected]: Deny a shutdown request with a reason
//   - [TypePlanApprovalRequest]: Submit a plan for review
//   - [TypePlanApprovalResponse]: Answer a plan review
//   - [TypeMessage]: Direct message to one teammate
//   - [TypeBroadcast]: Fan-out to every other teammate
//
// Request/response pairs correlate by a caller-chosen request id (see
// [NewRequestID]); the fabric itself never correlates.
//
// # Basic Usage
//
//	fabric := mailbox.New(st, mailbox.WithEmitter(emitter))
//
//	// Send a direct message
//	err := fabric.Send("alpha", "developer",
//	    mailbox.NewDirectMessage("team-lead", "developer", "Please review task 3", ""))
//
//	// Broadcast to everyone else
//	n, err := fabric.Broadcast("alpha", "team-lead", "Retro at 3pm", "")
//
//	// Read, process, clear
//	messages, err := fabric.Read("alpha", "developer")
//	// ... handle messages ...
//	err = fabric.Clear("alpha", "developer")
//
//	// Watch for new messages
//	cancel, err := fabric.Watch(ctx, "alpha", "developer", func(msg mailbox.ProtocolMessage) {
//	    log.Printf("from %s: %s", msg.From, msg.Text)
//	})
//	defer cancel()
//
// # Thread Safety
//
// The [Fabric] type is safe for concurrent use. Delivery is serialized per
// inbox by the store's file lock; sends to different inboxes proceed in
// parallel. Validation happens on both send and read, so a consumer never
// sees a message that fails its variant schema.
package mailbox
