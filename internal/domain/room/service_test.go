package room

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

type stubSender struct {
	stubMember
	inbox [][]byte
	full  bool
}

func (s *stubSender) TrySend(data []byte) bool {
	if s.full {
		return false
	}
	s.inbox = append(s.inbox, data)
	return true
}

func sender(username string) *stubSender {
	return &stubSender{stubMember: stubMember{id: uuid.New(), username: username}}
}

func (s *stubSender) lastEvent(t *testing.T) wsEvent {
	t.Helper()
	if len(s.inbox) == 0 {
		t.Fatalf("%s received no events", s.username)
	}
	var event wsEvent
	if err := json.Unmarshal(s.inbox[len(s.inbox)-1], &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return event
}

func newTestService() *Service {
	return NewService(NewRegistry(DefaultMaxVariables, allowAll{}, time.Hour))
}

func TestHandshake(t *testing.T) {
	svc := newTestService()

	alice := sender("alice")
	r, err := svc.Handshake(alice, "project-1")
	if err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if r.ID() != "project-1" {
		t.Errorf("room id = %q, want %q", r.ID(), "project-1")
	}
	if r.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", r.ClientCount())
	}

	if _, err := svc.Handshake(sender("ALICE"), "project-1"); err != ErrUsernameTaken {
		t.Errorf("Handshake with taken username err = %v, want ErrUsernameTaken", err)
	}

	// Same username in another room is fine.
	if _, err := svc.Handshake(sender("alice"), "project-2"); err != nil {
		t.Errorf("Handshake in other room err = %v, want nil", err)
	}
}

func TestSetVariableBroadcasts(t *testing.T) {
	svc := newTestService()

	alice := sender("alice")
	bob := sender("bob")
	carol := sender("carol")

	r, _ := svc.Handshake(alice, "project-1")
	svc.Handshake(bob, "project-1")
	svc.Handshake(carol, "project-1")

	if err := svc.CreateVariable(r, alice, "☁ score", "0"); err != nil {
		t.Fatalf("CreateVariable: %v", err)
	}
	if err := svc.SetVariable(r, alice, "☁ score", "10"); err != nil {
		t.Fatalf("SetVariable: %v", err)
	}

	// The sender hears nothing back.
	if len(alice.inbox) != 0 {
		t.Errorf("sender received %d events, want 0", len(alice.inbox))
	}

	for _, other := range []*stubSender{bob, carol} {
		if len(other.inbox) != 2 {
			t.Fatalf("%s received %d events, want 2", other.username, len(other.inbox))
		}
		event := other.lastEvent(t)
		if event.Method != "set" || event.Name != "☁ score" || event.Value != "10" {
			t.Errorf("%s got event %+v, want set ☁ score=10", other.username, event)
		}
	}
}

func TestSetVariableErrorDoesNotBroadcast(t *testing.T) {
	svc := newTestService()

	alice := sender("alice")
	bob := sender("bob")
	r, _ := svc.Handshake(alice, "project-1")
	svc.Handshake(bob, "project-1")

	if err := svc.SetVariable(r, alice, "☁ missing", "1"); err != ErrVariableNotFound {
		t.Fatalf("SetVariable err = %v, want ErrVariableNotFound", err)
	}
	if len(bob.inbox) != 0 {
		t.Errorf("bob received %d events after failed set, want 0", len(bob.inbox))
	}
}

func TestRenameAndDeleteBroadcast(t *testing.T) {
	svc := newTestService()

	alice := sender("alice")
	bob := sender("bob")
	r, _ := svc.Handshake(alice, "project-1")
	svc.Handshake(bob, "project-1")

	svc.CreateVariable(r, alice, "☁ a", "1")

	if err := svc.RenameVariable(r, alice, "☁ a", "☁ b"); err != nil {
		t.Fatalf("RenameVariable: %v", err)
	}
	event := bob.lastEvent(t)
	if event.Method != "rename" || event.Name != "☁ a" || event.NewName != "☁ b" {
		t.Errorf("rename event = %+v", event)
	}

	if err := svc.DeleteVariable(r, alice, "☁ b"); err != nil {
		t.Fatalf("DeleteVariable: %v", err)
	}
	event = bob.lastEvent(t)
	if event.Method != "delete" || event.Name != "☁ b" {
		t.Errorf("delete event = %+v", event)
	}
	if r.Has("☁ b") {
		t.Error("variable still present after delete")
	}
}

func TestBroadcastSkipsFullBuffers(t *testing.T) {
	svc := newTestService()

	alice := sender("alice")
	bob := sender("bob")
	carol := sender("carol")
	bob.full = true

	r, _ := svc.Handshake(alice, "project-1")
	svc.Handshake(bob, "project-1")
	svc.Handshake(carol, "project-1")

	if err := svc.CreateVariable(r, alice, "☁ x", "1"); err != nil {
		t.Fatalf("CreateVariable: %v", err)
	}

	if len(bob.inbox) != 0 {
		t.Error("full member received an event")
	}
	if len(carol.inbox) != 1 {
		t.Errorf("carol received %d events, want 1", len(carol.inbox))
	}
}

func TestSyncVariables(t *testing.T) {
	svc := newTestService()

	alice := sender("alice")
	r, _ := svc.Handshake(alice, "project-1")
	svc.CreateVariable(r, alice, "☁ one", "1")
	svc.CreateVariable(r, alice, "☁ two", "2")
	svc.CreateVariable(r, alice, "☁ three", "3")

	late := sender("late")
	svc.Handshake(late, "project-1")
	svc.SyncVariables(r, late)

	if len(late.inbox) != 3 {
		t.Fatalf("late joiner received %d events, want 3", len(late.inbox))
	}

	// One set per variable, in creation order.
	wantNames := []string{"☁ one", "☁ two", "☁ three"}
	wantValues := []string{"1", "2", "3"}
	for i, raw := range late.inbox {
		var event wsEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			t.Fatalf("unmarshal event %d: %v", i, err)
		}
		if event.Method != "set" || event.Name != wantNames[i] || event.Value != wantValues[i] {
			t.Errorf("sync event %d = %+v, want set %s=%s", i, event, wantNames[i], wantValues[i])
		}
	}
}

func TestLeave(t *testing.T) {
	svc := newTestService()

	alice := sender("alice")
	r, _ := svc.Handshake(alice, "project-1")
	svc.Leave(r, alice)

	if r.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", r.ClientCount())
	}
	if r.LastDisconnect().IsZero() {
		t.Error("LastDisconnect not set after Leave")
	}

	// Leaving twice is harmless.
	svc.Leave(r, alice)
}
