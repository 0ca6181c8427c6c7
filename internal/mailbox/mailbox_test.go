package mailbox

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/levelcode/teamfabric/internal/analytics"
	"github.com/levelcode/teamfabric/internal/errors"
	"github.com/levelcode/teamfabric/internal/event"
	"github.com/levelcode/teamfabric/internal/store"
	"github.com/levelcode/teamfabric/internal/team"
)

// =============================================================================
// Test Helpers
// =============================================================================

func newTestFabric(t *testing.T, opts ...Option) *Fabric {
	t.Helper()
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	return New(s, opts...)
}

// seedTeam creates a team with members team-lead, developer, and tester.
func seedTeam(t *testing.T, f *Fabric, name string) {
	t.Helper()
	cfg := team.NewTeamConfig(name, "test team", "lead-1")
	if err := f.Store().CreateTeam(cfg); err != nil {
		t.Fatalf("CreateTeam(%q) failed: %v", name, err)
	}
	for i, member := range []string{"team-lead", "developer", "tester"} {
		err := f.Store().AddTeamMember(name, team.TeamMember{
			AgentID: fmt.Sprintf("agent-%d", i+1),
			Name:    member,
			Role:    "senior-engineer",
		})
		if err != nil {
			t.Fatalf("AddTeamMember(%q) failed: %v", member, err)
		}
	}
}

// =============================================================================
// Send / Read / Clear
// =============================================================================

func TestFabric_SendAndRead_RoundTrip(t *testing.T) {
	f := newTestFabric(t)
	seedTeam(t, f, "alpha")

	sent := NewDirectMessage("team-lead", "developer", "please review task 3", "")
	if err := f.Send("alpha", "developer", sent); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	got, err := f.Read("alpha", "developer")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Read returned %d messages, want 1", len(got))
	}
	if got[0] != sent {
		t.Errorf("Read returned %+v, want %+v", got[0], sent)
	}
}

func TestFabric_Read_IsPure(t *testing.T) {
	f := newTestFabric(t)
	seedTeam(t, f, "alpha")

	for i := 0; i < 3; i++ {
		msg := NewDirectMessage("team-lead", "developer", fmt.Sprintf("note %d", i), "")
		if err := f.Send("alpha", "developer", msg); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	first, err := f.Read("alpha", "developer")
	if err != nil {
		t.Fatalf("first Read failed: %v", err)
	}
	second, err := f.Read("alpha", "developer")
	if err != nil {
		t.Fatalf("second Read failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("consecutive reads differ:\nfirst  %+v\nsecond %+v", first, second)
	}
	if len(first) != 3 {
		t.Errorf("Read returned %d messages, want 3", len(first))
	}
}

func TestFabric_Clear_EmptiesInbox(t *testing.T) {
	f := newTestFabric(t)
	seedTeam(t, f, "alpha")

	if err := f.Send("alpha", "developer", NewBroadcastMessage("team-lead", "standup", "")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := f.Clear("alpha", "developer"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	got, err := f.Read("alpha", "developer")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Read after Clear returned %d messages, want 0", len(got))
	}
}

func TestFabric_Send_StampsEmptyTimestamp(t *testing.T) {
	f := newTestFabric(t)
	seedTeam(t, f, "alpha")

	msg := ProtocolMessage{Type: TypeIdleNotification, From: "developer"}
	if err := f.Send("alpha", "team-lead", msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	got, err := f.Read("alpha", "team-lead")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != 1 || got[0].Time().IsZero() {
		t.Errorf("Send did not stamp a parseable timestamp: %+v", got)
	}
}

func TestFabric_Send_RejectsInvalidMessage(t *testing.T) {
	f := newTestFabric(t)
	seedTeam(t, f, "alpha")

	err := f.Send("alpha", "developer", ProtocolMessage{Type: TypeMessage, From: "team-lead"})
	if err == nil {
		t.Fatal("Send accepted a message with no text")
	}
	if !errors.IsValidation(err) {
		t.Errorf("Send error = %v, want a validation error", err)
	}

	got, readErr := f.Read("alpha", "developer")
	if readErr != nil {
		t.Fatalf("Read failed: %v", readErr)
	}
	if len(got) != 0 {
		t.Errorf("invalid Send still delivered %d messages", len(got))
	}
}

func TestFabric_Send_MissingTeam(t *testing.T) {
	f := newTestFabric(t)

	err := f.Send("ghost", "developer", NewBroadcastMessage("team-lead", "hello", ""))
	if !errors.Is(err, errors.ErrTeamNotFound) {
		t.Errorf("Send error = %v, want ErrTeamNotFound", err)
	}
}

func TestFabric_Read_CorruptPayload(t *testing.T) {
	f := newTestFabric(t)
	seedTeam(t, f, "alpha")

	// Bypass the fabric: the store accepts any valid JSON payload.
	raw := json.RawMessage(`{"type":"carrier_pigeon","timestamp":"2026-01-02T03:04:05.000Z"}`)
	if err := f.Store().SendMessage("alpha", "developer", raw); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	_, err := f.Read("alpha", "developer")
	if err == nil {
		t.Fatal("Read accepted an unknown message type")
	}
	if !errors.IsCorrupted(err) {
		t.Errorf("Read error = %v, want a corrupted error", err)
	}

	var corrupted *errors.CorruptedError
	if !errors.As(err, &corrupted) {
		t.Fatalf("Read error %v is not a *CorruptedError", err)
	}
	if corrupted.Path == "" {
		t.Error("corrupted error should carry the inbox path")
	}
}

// =============================================================================
// Broadcast
// =============================================================================

func TestFabric_Broadcast_SkipsSender(t *testing.T) {
	f := newTestFabric(t)
	seedTeam(t, f, "alpha")

	n, err := f.Broadcast("alpha", "team-lead", "Retro at 3pm", "")
	if err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Broadcast delivered to %d inboxes, want 2", n)
	}

	lead, err := f.Read("alpha", "team-lead")
	if err != nil {
		t.Fatalf("Read(team-lead) failed: %v", err)
	}
	if len(lead) != 0 {
		t.Errorf("sender's inbox has %d messages, want 0", len(lead))
	}

	for _, member := range []string{"developer", "tester"} {
		got, err := f.Read("alpha", member)
		if err != nil {
			t.Fatalf("Read(%s) failed: %v", member, err)
		}
		if len(got) != 1 {
			t.Fatalf("%s inbox has %d messages, want 1", member, len(got))
		}
		if got[0].Type != TypeBroadcast || got[0].Text != "Retro at 3pm" || got[0].From != "team-lead" {
			t.Errorf("%s received %+v", member, got[0])
		}
	}
}

func TestFabric_Broadcast_IdenticalPayloads(t *testing.T) {
	f := newTestFabric(t)
	seedTeam(t, f, "alpha")

	if _, err := f.Broadcast("alpha", "tester", "smoke suite green", ""); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}

	lead, err := f.Read("alpha", "team-lead")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	dev, err := f.Read("alpha", "developer")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(lead) != 1 || len(dev) != 1 {
		t.Fatalf("inbox lengths = %d, %d, want 1, 1", len(lead), len(dev))
	}
	if lead[0] != dev[0] {
		t.Errorf("recipients saw different payloads:\n lead %+v\n dev  %+v", lead[0], dev[0])
	}
}

func TestFabric_Broadcast_MissingTeam(t *testing.T) {
	f := newTestFabric(t)

	_, err := f.Broadcast("ghost", "team-lead", "hello", "")
	if !errors.Is(err, errors.ErrTeamNotFound) {
		t.Errorf("Broadcast error = %v, want ErrTeamNotFound", err)
	}
}

// =============================================================================
// Concurrency
// =============================================================================

func TestFabric_ConcurrentSenders_NoLoss(t *testing.T) {
	f := newTestFabric(t)
	seedTeam(t, f, "alpha")

	const senders = 20
	var wg sync.WaitGroup
	errCh := make(chan error, senders)
	for i := 0; i < senders; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := NewDirectMessage("team-lead", "developer", fmt.Sprintf("message %d", i), "")
			if err := f.Send("alpha", "developer", msg); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("concurrent Send failed: %v", err)
	}

	got, err := f.Read("alpha", "developer")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != senders {
		t.Fatalf("inbox has %d messages, want %d", len(got), senders)
	}

	texts := make(map[string]bool, senders)
	for _, msg := range got {
		texts[msg.Text] = true
	}
	for i := 0; i < senders; i++ {
		if !texts[fmt.Sprintf("message %d", i)] {
			t.Errorf("message %d was lost", i)
		}
	}
}

func TestFabric_CrossInboxSenders(t *testing.T) {
	f := newTestFabric(t)
	seedTeam(t, f, "alpha")

	const perInbox = 10
	var wg sync.WaitGroup
	for i := 0; i < perInbox; i++ {
		for _, to := range []string{"developer", "tester"} {
			i, to := i, to
			wg.Add(1)
			go func() {
				defer wg.Done()
				msg := NewDirectMessage("team-lead", to, fmt.Sprintf("to %s #%d", to, i), "")
				if err := f.Send("alpha", to, msg); err != nil {
					t.Errorf("Send(%s) failed: %v", to, err)
				}
			}()
		}
	}
	wg.Wait()

	for _, member := range []string{"developer", "tester"} {
		got, err := f.Read("alpha", member)
		if err != nil {
			t.Fatalf("Read(%s) failed: %v", member, err)
		}
		if len(got) != perInbox {
			t.Errorf("%s inbox has %d messages, want %d", member, len(got), perInbox)
		}
	}
}

// =============================================================================
// Events
// =============================================================================

func TestFabric_Send_EmitsMessageSent(t *testing.T) {
	bus := event.NewBus()
	sink := analytics.NewMemorySink()
	f := newTestFabric(t, WithEmitter(event.NewEmitter(bus, sink)))
	seedTeam(t, f, "alpha")

	var got []event.MessageSentEvent
	bus.Subscribe(analytics.EventMessageSent, func(e event.Event) {
		got = append(got, e.(event.MessageSentEvent))
	})

	if err := f.Send("alpha", "developer", NewDirectMessage("team-lead", "developer", "ping", "")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("bus saw %d message_sent events, want 1", len(got))
	}
	ev := got[0]
	if ev.TeamName != "alpha" || ev.From != "team-lead" || ev.To != "developer" || ev.MessageType != "message" {
		t.Errorf("unexpected event payload: %+v", ev)
	}
	if sink.CaptureCount() != 1 {
		t.Errorf("sink captured %d events, want 1", sink.CaptureCount())
	}
}

func TestFabric_Send_NoEventOnFailure(t *testing.T) {
	bus := event.NewBus()
	f := newTestFabric(t, WithEmitter(event.NewEmitter(bus, nil)))
	seedTeam(t, f, "alpha")

	fired := false
	bus.SubscribeAll(func(e event.Event) { fired = true })

	// Invalid message: delivery never happens, so neither may the event.
	_ = f.Send("alpha", "developer", ProtocolMessage{Type: TypeMessage})

	if fired {
		t.Error("event emitted for a failed Send")
	}
}
