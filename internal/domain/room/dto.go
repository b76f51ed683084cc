package room

import (
	"encoding/json"
	"time"
)

// Wire methods of the variable protocol
const (
	methodHandshake = "handshake"
	methodCreate    = "create"
	methodSet       = "set"
	methodRename    = "rename"
	methodDelete    = "delete"
)

// flexString accepts either a JSON string or a bare number, since cloud
// clients send numeric variable values unquoted.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	if string(b) == "null" {
		*s = ""
		return nil
	}
	*s = flexString(b)
	return nil
}

// wsRequest is an incoming client message
type wsRequest struct {
	Method   string     `json:"method"`
	RoomID   string     `json:"room_id,omitempty"`
	Username string     `json:"username,omitempty"`
	Name     string     `json:"name,omitempty"`
	NewName  string     `json:"new_name,omitempty"`
	Value    flexString `json:"value,omitempty"`
}

// handshakeRequest carries the validated handshake fields
type handshakeRequest struct {
	RoomID   string `json:"room_id" validate:"required,min=1,max=64"`
	Username string `json:"username" validate:"required,username"`
}

// wsEvent is a server-pushed message
type wsEvent struct {
	Method  string `json:"method"`
	Name    string `json:"name,omitempty"`
	NewName string `json:"new_name,omitempty"`
	Value   string `json:"value"`
}

// RoomSummary is the list-endpoint view of a room
type RoomSummary struct {
	ID            string `json:"id"`
	ClientCount   int    `json:"client_count"`
	VariableCount int    `json:"variable_count"`
}

// RoomResponse is the detail-endpoint view of a room
type RoomResponse struct {
	ID             string            `json:"id"`
	Variables      map[string]string `json:"variables"`
	VariableNames  []string          `json:"variable_names"`
	Clients        []string          `json:"clients"`
	LastDisconnect *time.Time        `json:"last_disconnect,omitempty"`
}

// RoomResponseFromEntity builds a detail view from a room snapshot
func RoomResponseFromEntity(r *Room) *RoomResponse {
	members := r.Clients()
	usernames := make([]string, len(members))
	for i, m := range members {
		usernames[i] = m.Username()
	}

	resp := &RoomResponse{
		ID:            r.ID(),
		Variables:     r.Variables(),
		VariableNames: r.VariableNames(),
		Clients:       usernames,
	}
	if last := r.LastDisconnect(); !last.IsZero() {
		resp.LastDisconnect = &last
	}
	return resp
}
