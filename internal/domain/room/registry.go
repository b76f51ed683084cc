package room

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Registry owns all live rooms in the process. Rooms are created on first
// use and destroyed by the janitor once they sit empty past the idle TTL.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	maxVariables int
	validator    Validator
	idleTTL      time.Duration
	now          func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry(maxVariables int, v Validator, idleTTL time.Duration) *Registry {
	return NewRegistryWithClock(maxVariables, v, idleTTL, time.Now)
}

// NewRegistryWithClock creates a registry with an injected time source,
// shared with the rooms it creates.
func NewRegistryWithClock(maxVariables int, v Validator, idleTTL time.Duration, now func() time.Time) *Registry {
	return &Registry{
		rooms:        make(map[string]*Room),
		maxVariables: maxVariables,
		validator:    v,
		idleTTL:      idleTTL,
		now:          now,
	}
}

// GetOrCreate returns the room with the given id, creating it if needed
func (reg *Registry) GetOrCreate(id string) *Room {
	reg.mu.RLock()
	r, ok := reg.rooms[id]
	reg.mu.RUnlock()
	if ok {
		return r
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rooms[id]; ok {
		return r
	}

	r = NewWithClock(id, reg.maxVariables, reg.validator, reg.now)
	reg.rooms[id] = r
	log.Debug().Str("room_id", id).Msg("Room created")
	return r
}

// Join resolves the room and adds the client in one step under the registry
// lock. Resolving and joining separately would let a concurrent Sweep reclaim
// the room in between, stranding the client in a detached room.
func (reg *Registry) Join(id string, c Member) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[id]
	if !ok {
		r = NewWithClock(id, reg.maxVariables, reg.validator, reg.now)
		reg.rooms[id] = r
		log.Debug().Str("room_id", id).Msg("Room created")
	}

	if err := r.AddClient(c); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns an existing room
func (reg *Registry) Get(id string) (*Room, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	r, ok := reg.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Remove destroys a room regardless of its state
func (reg *Registry) Remove(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.rooms, id)
}

// Count returns the number of live rooms
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// IDs returns the ids of all live rooms
func (reg *Registry) IDs() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]string, 0, len(reg.rooms))
	for id := range reg.rooms {
		out = append(out, id)
	}
	return out
}

// Sweep destroys rooms that are empty and whose last disconnect is older
// than the idle TTL. It returns how many rooms were reclaimed.
func (reg *Registry) Sweep() int {
	now := reg.now()

	reg.mu.Lock()
	defer reg.mu.Unlock()

	removed := 0
	for id, r := range reg.rooms {
		if r.ClientCount() > 0 {
			continue
		}
		last := r.LastDisconnect()
		if last.IsZero() || now.Sub(last) < reg.idleTTL {
			continue
		}
		delete(reg.rooms, id)
		removed++
		log.Info().Str("room_id", id).Msg("Idle room reclaimed")
	}
	return removed
}

// RunJanitor sweeps idle rooms on the given interval until ctx is done
// (call in goroutine)
func (reg *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.Sweep()
		}
	}
}
