package mailbox

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/levelcode/teamfabric/internal/errors"
)

// Watch delivers new messages arriving in team/agent's inbox to fn until
// ctx is canceled or the returned cancel function is called. Only messages
// appended after the initial snapshot are delivered, in queue order; a
// cleared inbox resets the snapshot without re-delivering.
//
// Filesystem notifications are debounced before the inbox is re-read. A
// periodic poll backstops fsnotify, and carries the watcher alone on
// platforms where the notifier cannot be created. Payloads that fail
// schema validation are skipped with a warning rather than killing the
// watcher.
func (f *Fabric) Watch(ctx context.Context, teamName, agent string, fn func(ProtocolMessage)) (cancel func(), err error) {
	if !f.store.TeamExists(teamName) {
		return nil, errors.NewTeamNotFoundError(teamName)
	}
	inboxPath, err := f.store.InboxPath(teamName, agent)
	if err != nil {
		return nil, err
	}
	inboxDir := filepath.Dir(inboxPath)

	// The inbox file is created lazily on first delivery, so the watch
	// target is its directory.
	if err := os.MkdirAll(inboxDir, 0o755); err != nil {
		return nil, errors.NewStoreError("create inbox directory", err).WithTeam(teamName).WithPath(inboxDir)
	}

	// Snapshot synchronously so any Send after Watch returns is seen.
	seen := 0
	if raws, err := f.store.ReadInbox(teamName, agent); err == nil {
		seen = len(raws)
	}

	watcher, werr := fsnotify.NewWatcher()
	if werr == nil {
		if err := watcher.Add(inboxDir); err != nil {
			_ = watcher.Close()
			watcher = nil
		}
	} else {
		watcher = nil
	}
	if watcher == nil {
		f.logger.Warn("inbox notifier unavailable, polling only", "team", teamName, "agent", agent)
	}

	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		if watcher != nil {
			defer func() { _ = watcher.Close() }()
		}

		debounce := time.NewTimer(f.debounce)
		if !debounce.Stop() {
			<-debounce.C
		}
		poll := time.NewTicker(f.pollInterval)
		defer poll.Stop()

		// Nil channels select as never-ready, which collapses this loop
		// to poll-only mode when the notifier is absent.
		var events chan fsnotify.Event
		var watchErrs chan error
		if watcher != nil {
			events = watcher.Events
			watchErrs = watcher.Errors
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return

			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if ev.Name != inboxPath {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				debounce.Reset(f.debounce)

			case <-debounce.C:
				seen = f.deliverNew(teamName, agent, seen, fn)

			case <-poll.C:
				seen = f.deliverNew(teamName, agent, seen, fn)

			case err, ok := <-watchErrs:
				if !ok {
					watchErrs = nil
					continue
				}
				f.logger.Warn("inbox notifier error", "team", teamName, "agent", agent, "error", err)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopCh)
			wg.Wait()
		})
	}, nil
}

// deliverNew reads the inbox and hands every message past the seen mark to
// fn. It returns the new seen count. Read failures are transient (a reader
// racing a writer) and leave the mark unchanged for the next tick.
func (f *Fabric) deliverNew(teamName, agent string, seen int, fn func(ProtocolMessage)) int {
	raws, err := f.store.ReadInbox(teamName, agent)
	if err != nil {
		return seen
	}
	if len(raws) < seen {
		// Inbox was cleared; restart from the new tail.
		return len(raws)
	}
	for _, raw := range raws[seen:] {
		msg, err := Decode(raw)
		if err != nil {
			f.logger.Warn("skipping invalid inbox message", "team", teamName, "agent", agent, "error", err)
			continue
		}
		fn(msg)
	}
	return len(raws)
}
