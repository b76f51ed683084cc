package room

import "strings"

// AddClient appends a client to the room membership. It fails with
// ErrAlreadyMember if the same client is already present, and with
// ErrUsernameTaken if another connected client reports the same username
// under case-insensitive comparison.
func (r *Room) AddClient(c Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.clients {
		if existing.ID() == c.ID() {
			return ErrAlreadyMember
		}
		if strings.EqualFold(existing.Username(), c.Username()) {
			return ErrUsernameTaken
		}
	}

	r.clients = append(r.clients, c)
	return nil
}

// RemoveClient removes a client and records the disconnect time. It fails
// with ErrNotMember if the client is not present.
func (r *Room) RemoveClient(c Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.clients {
		if existing.ID() == c.ID() {
			r.clients = append(r.clients[:i], r.clients[i+1:]...)
			r.lastDisconnect = r.now()
			return nil
		}
	}
	return ErrNotMember
}

// Clients returns a snapshot of the current membership
func (r *Room) Clients() []Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Member, len(r.clients))
	copy(out, r.clients)
	return out
}

// ClientCount returns the number of connected clients
func (r *Room) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// HasClientWithUsername reports whether any connected client uses the given
// username, compared case-insensitively.
func (r *Room) HasClientWithUsername(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.clients {
		if strings.EqualFold(c.Username(), username) {
			return true
		}
	}
	return false
}

// Create inserts a new variable. Validation happens on write only; stored
// values are never re-validated.
func (r *Room) Create(name, value string) error {
	if !r.validator.IsValidVariableName(name) {
		return ErrInvalidName
	}
	if !r.validator.IsValidVariableValue(value) {
		return ErrInvalidValue
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.variables[name]; ok {
		return ErrVariableExists
	}
	if len(r.variables) >= r.maxVariables {
		return ErrTooManyVariables
	}

	r.variables[name] = value
	r.names = append(r.names, name)
	return nil
}

// Set overwrites the value of an existing variable
func (r *Room) Set(name, value string) error {
	if !r.validator.IsValidVariableName(name) {
		return ErrInvalidName
	}
	if !r.validator.IsValidVariableValue(value) {
		return ErrInvalidValue
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.variables[name]; !ok {
		return ErrVariableNotFound
	}

	r.variables[name] = value
	return nil
}

// Rename moves a variable to a new name, keeping its value and its position
// in enumeration order.
func (r *Room) Rename(oldName, newName string) error {
	if !r.validator.IsValidVariableName(newName) {
		return ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	value, ok := r.variables[oldName]
	if !ok {
		return ErrVariableNotFound
	}
	if _, ok := r.variables[newName]; ok {
		return ErrVariableExists
	}

	delete(r.variables, oldName)
	r.variables[newName] = value
	for i, n := range r.names {
		if n == oldName {
			r.names[i] = newName
			break
		}
	}
	return nil
}

// Delete removes a variable
func (r *Room) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.variables[name]; !ok {
		return ErrVariableNotFound
	}

	delete(r.variables, name)
	for i, n := range r.names {
		if n == name {
			r.names = append(r.names[:i], r.names[i+1:]...)
			break
		}
	}
	return nil
}

// Has reports whether a variable exists
func (r *Room) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.variables[name]
	return ok
}

// Get returns a variable's value
func (r *Room) Get(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	value, ok := r.variables[name]
	return value, ok
}

// Variables returns a snapshot copy of the variable map. Mutation goes
// through Create/Set/Rename/Delete only.
func (r *Room) Variables() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]string, len(r.variables))
	for name, value := range r.variables {
		out[name] = value
	}
	return out
}

// VariableNames returns the variable names in insertion order
func (r *Room) VariableNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// MatchesVariableList reports whether names (assumed duplicate-free) is
// exactly the set of stored variable names, compared case-sensitively and
// ignoring order. Used to detect schema drift between a client's expected
// variable set and the room's actual one.
func (r *Room) MatchesVariableList(names []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(names) != len(r.variables) {
		return false
	}
	for _, name := range names {
		if _, ok := r.variables[name]; !ok {
			return false
		}
	}
	return true
}
