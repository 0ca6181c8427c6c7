// Package bridge correlates request/response protocol traffic for one agent.
//
// The message fabric deliberately never correlates: a shutdown_request or
// plan_approval_request lands in the recipient's inbox, and the response
// echoing the caller-chosen request id lands back in the requester's. The
// Bridge is the application-side slot that does the matching. Outbound,
// Ask sends a request and parks the caller until the echoed response
// arrives in the agent's own inbox. Inbound, requests received from other
// agents are held in a pending set until the agent answers them with
// Respond.
//
// One Bridge is created per agent (per process); it pumps the agent's
// inbox through the fabric's watcher. Messages that are neither requests
// nor responses pass through to the optional handler untouched.
//
// Lifecycle:
//
//	b := bridge.New(fabric, "alpha", "team-lead")
//	if err := b.Start(ctx); err != nil { ... }
//	// ... Ask / Pending / Respond ...
//	b.Stop() // cancels the watcher and fails outstanding asks
package bridge
