package room

import (
	"encoding/json"
	"expvar"

	"github.com/rs/zerolog/log"
)

var (
	varEventsSentTotal    = expvar.NewInt("variable_events_sent_total")
	varEventsDroppedTotal = expvar.NewInt("variable_events_dropped_total")
)

// Sender is a member that can receive server-pushed events. TrySend must not
// block; it reports false when the member's buffer is full.
type Sender interface {
	Member
	TrySend(data []byte) bool
}

// Service orchestrates room membership and variable updates and fans updates
// out to the other members of a room.
type Service struct {
	registry *Registry
}

// NewService creates a room service on top of a registry
func NewService(registry *Registry) *Service {
	return &Service{registry: registry}
}

// Registry returns the underlying registry
func (s *Service) Registry() *Registry {
	return s.registry
}

// Handshake places a client into a room, creating the room on first use.
// The join goes through the registry so the janitor cannot reclaim the room
// between resolving it and adding the client.
func (s *Service) Handshake(c Member, roomID string) (*Room, error) {
	r, err := s.registry.Join(roomID, c)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("room_id", roomID).
		Str("username", c.Username()).
		Msg("Client joined room")
	return r, nil
}

// Leave removes a client from its room
func (s *Service) Leave(r *Room, c Member) {
	if err := r.RemoveClient(c); err != nil {
		return
	}
	log.Debug().
		Str("room_id", r.ID()).
		Str("username", c.Username()).
		Msg("Client left room")
}

// SyncVariables pushes the room's current variables to one member, in
// insertion order, as set events. Called once after a successful handshake.
func (s *Service) SyncVariables(r *Room, c Sender) {
	for _, name := range r.VariableNames() {
		value, ok := r.Get(name)
		if !ok {
			continue
		}
		s.send(c, &wsEvent{Method: methodSet, Name: name, Value: value})
	}
}

// CreateVariable creates a variable and announces it to the other members
func (s *Service) CreateVariable(r *Room, sender Member, name, value string) error {
	if err := r.Create(name, value); err != nil {
		return err
	}
	s.broadcast(r, sender, &wsEvent{Method: methodCreate, Name: name, Value: value})
	return nil
}

// SetVariable updates a variable and announces the new value to the other
// members
func (s *Service) SetVariable(r *Room, sender Member, name, value string) error {
	if err := r.Set(name, value); err != nil {
		return err
	}
	s.broadcast(r, sender, &wsEvent{Method: methodSet, Name: name, Value: value})
	return nil
}

// RenameVariable renames a variable and announces the rename
func (s *Service) RenameVariable(r *Room, sender Member, oldName, newName string) error {
	if err := r.Rename(oldName, newName); err != nil {
		return err
	}
	s.broadcast(r, sender, &wsEvent{Method: methodRename, Name: oldName, NewName: newName})
	return nil
}

// DeleteVariable deletes a variable and announces the deletion
func (s *Service) DeleteVariable(r *Room, sender Member, name string) error {
	if err := r.Delete(name); err != nil {
		return err
	}
	s.broadcast(r, sender, &wsEvent{Method: methodDelete, Name: name})
	return nil
}

// broadcast delivers an event to every member of the room except the sender
func (s *Service) broadcast(r *Room, except Member, event *wsEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal room event")
		return
	}

	for _, m := range r.Clients() {
		if except != nil && m.ID() == except.ID() {
			continue
		}
		c, ok := m.(Sender)
		if !ok {
			continue
		}
		if c.TrySend(data) {
			varEventsSentTotal.Add(1)
		} else {
			// Buffer full, skip this member
			varEventsDroppedTotal.Add(1)
			log.Warn().
				Str("room_id", r.ID()).
				Str("username", m.Username()).
				Msg("Member send buffer full")
		}
	}
}

func (s *Service) send(c Sender, event *wsEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if c.TrySend(data) {
		varEventsSentTotal.Add(1)
	} else {
		varEventsDroppedTotal.Add(1)
	}
}
