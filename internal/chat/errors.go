package chat

import "errors"

// Expected, recoverable failure conditions. Handlers translate these into
// 4xx responses with the wrapped context as the reason text; anything else
// is a server fault.
var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomExists      = errors.New("room already exists")
	ErrPlayerNotFound  = errors.New("player not found")
	ErrPlayerExists    = errors.New("player already exists")
	ErrChannelNotFound = errors.New("channel not found")
	ErrChannelExists   = errors.New("channel already exists")
	ErrChannelCapacity = errors.New("private channel limit reached")
	ErrInvalidIdent    = errors.New("invalid identifier")
)
