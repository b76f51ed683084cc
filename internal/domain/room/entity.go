package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxVariables bounds the variable map of a room unless configured
// otherwise.
const DefaultMaxVariables = 10

// Member is a connected client as seen by a room: a stable identity used for
// membership equality plus the username shown to other members. The room
// never owns the underlying connection.
type Member interface {
	ID() uuid.UUID
	Username() string
}

// Validator reports whether variable names and values are acceptable for
// storage. Implementations must be pure and side-effect free.
type Validator interface {
	IsValidVariableName(name string) bool
	IsValidVariableValue(value string) bool
}

// Room is a named collection of connected clients sharing a bounded set of
// string-valued variables. All operations take the room mutex so the
// membership and variable invariants hold atomically under concurrent
// callers.
type Room struct {
	id string

	mu             sync.Mutex
	maxVariables   int
	validator      Validator
	now            func() time.Time
	names          []string // variable insertion order, for deterministic enumeration
	variables      map[string]string
	clients        []Member
	lastDisconnect time.Time // zero until a client leaves for the first time
}

// New creates an empty room
func New(id string, maxVariables int, v Validator) *Room {
	return NewWithClock(id, maxVariables, v, time.Now)
}

// NewWithClock creates an empty room with an injected time source
func NewWithClock(id string, maxVariables int, v Validator, now func() time.Time) *Room {
	if maxVariables <= 0 {
		maxVariables = DefaultMaxVariables
	}
	return &Room{
		id:           id,
		maxVariables: maxVariables,
		validator:    v,
		now:          now,
		variables:    make(map[string]string),
	}
}

// ID returns the room identifier
func (r *Room) ID() string {
	return r.id
}

// LastDisconnect returns when the most recent client removal happened.
// The zero time means no client has ever left; an external reclamation
// policy combines this with the member count to decide when an empty room
// may be destroyed.
func (r *Room) LastDisconnect() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastDisconnect
}
