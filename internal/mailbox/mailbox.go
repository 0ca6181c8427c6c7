package mailbox

import (
	"encoding/json"
	"time"

	"github.com/levelcode/teamfabric/internal/errors"
	"github.com/levelcode/teamfabric/internal/event"
	"github.com/levelcode/teamfabric/internal/logging"
	"github.com/levelcode/teamfabric/internal/store"
)

const (
	// defaultDebounce coalesces filesystem events before a watcher reads
	// the inbox. Editors and atomic renames produce bursts of events for
	// one logical write.
	defaultDebounce = 50 * time.Millisecond

	// defaultPollInterval is the watcher's fallback poll cadence. It
	// catches deliveries that fsnotify missed (or all of them, when the
	// platform watcher could not be created).
	defaultPollInterval = 500 * time.Millisecond
)

// Fabric provides typed messaging over the team store's inbox primitives.
// It validates the protocol schema on both send and read; the store
// underneath treats payloads as opaque JSON.
type Fabric struct {
	store        *store.Store
	emitter      *event.Emitter
	logger       *logging.Logger
	debounce     time.Duration
	pollInterval time.Duration
}

// New creates a Fabric over the given store.
func New(st *store.Store, opts ...Option) *Fabric {
	f := &Fabric{
		store:        st,
		logger:       logging.NopLogger(),
		debounce:     defaultDebounce,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Send validates the message and delivers it to exactly one recipient's
// queue. An empty Timestamp is stamped with the current time. Order within
// a single producer is preserved; across producers, order is linearized by
// inbox lock acquisition. On success a team.message_sent event is emitted.
func (f *Fabric) Send(teamName, to string, msg ProtocolMessage) error {
	if msg.Timestamp == "" {
		msg.Timestamp = timestampNow()
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encode message")
	}
	if err := f.store.SendMessage(teamName, to, raw); err != nil {
		return err
	}

	if f.emitter != nil {
		f.emitter.EmitMessageSent(teamName, msg.From, to, string(msg.Type))
	}
	return nil
}

// Broadcast fans the text out to every member whose name differs from the
// sender, one Send per recipient. The sender's own inbox is untouched.
// Returns the number of inboxes reached; on a mid-fanout failure the count
// covers the deliveries that already landed.
func (f *Fabric) Broadcast(teamName, from, text, summary string) (int, error) {
	cfg, err := f.store.LoadTeamConfig(teamName)
	if err != nil {
		return 0, err
	}
	if cfg == nil {
		return 0, errors.NewTeamNotFoundError(teamName)
	}

	// One message value, one timestamp: every recipient sees an
	// identical payload.
	msg := NewBroadcastMessage(from, text, summary)

	delivered := 0
	for _, member := range cfg.Members {
		if member.Name == from {
			continue
		}
		if err := f.Send(teamName, member.Name, msg); err != nil {
			return delivered, err
		}
		delivered++
	}

	f.logger.Debug("broadcast delivered", "team", teamName, "from", from, "recipients", delivered)
	return delivered, nil
}

// Read returns the recipient's queued messages, oldest first, after
// validating every payload against the protocol schema. Reading does not
// consume; callers Clear after processing. A payload that fails validation
// surfaces as a corrupted-inbox error carrying the file path.
func (f *Fabric) Read(teamName, agent string) ([]ProtocolMessage, error) {
	raws, err := f.store.ReadInbox(teamName, agent)
	if err != nil {
		return nil, err
	}

	messages := make([]ProtocolMessage, 0, len(raws))
	for _, raw := range raws {
		msg, err := Decode(raw)
		if err != nil {
			path, pathErr := f.store.InboxPath(teamName, agent)
			if pathErr != nil {
				path = teamName + "/" + agent
			}
			return nil, errors.NewCorruptedError("inbox message", path, err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Clear resets the recipient's inbox to an empty queue.
func (f *Fabric) Clear(teamName, agent string) error {
	return f.store.ClearInbox(teamName, agent)
}

// Store exposes the underlying team store.
func (f *Fabric) Store() *store.Store {
	return f.store
}
