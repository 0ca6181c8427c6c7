// Package coordination provides a Coordinator that wires the fabric's
// components together behind one gated façade.
//
// The Coordinator owns the team-facing mutation path:
//
//	Store (teams, tasks, inboxes) ← phase gate ← operations
//
// Plus the surrounding machinery:
//
//   - Fabric (message transport and inbox watchers)
//   - Emitter (hook bus + analytics capture)
//   - Resolver (agent → team discovery)
//   - Engine (integrity, cleanup, archival)
//   - Labeler (background task label generation, optional)
//
// Every team-scoped operation checks the tool-gating table against the
// team's current phase before touching the store, so callers cannot
// bypass lifecycle restrictions by reaching around the façade.
//
// Usage:
//
//	coord, err := coordination.New(coordination.Config{
//	    Store:   st,
//	    Fabric:  fabric,
//	    Emitter: emitter,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := coord.Start(ctx); err != nil {
//	    return err
//	}
//	defer coord.Stop()
//
//	err = coord.CreateTask("payments", task)
package coordination
