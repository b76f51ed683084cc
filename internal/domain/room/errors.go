package room

import "errors"

var (
	ErrAlreadyMember    = errors.New("client is already a member of this room")
	ErrNotMember        = errors.New("client is not a member of this room")
	ErrUsernameTaken    = errors.New("username is already in use in this room")
	ErrInvalidName      = errors.New("invalid variable name")
	ErrInvalidValue     = errors.New("invalid variable value")
	ErrVariableExists   = errors.New("variable already exists")
	ErrVariableNotFound = errors.New("variable not found")
	ErrTooManyVariables = errors.New("room variable limit reached")
	ErrRoomNotFound     = errors.New("room not found")
)
