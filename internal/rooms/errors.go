package rooms

import "errors"

var (
	// ErrSelfDM is returned when a user requests a DM with their own login.
	ErrSelfDM = errors.New("cannot create DM with yourself")
	// ErrUserNotFound is returned when a DM target has never logged in.
	ErrUserNotFound = errors.New("user not found, they need to log in to GitTalk first")
	// ErrRoomNotFound is returned when a room id does not exist.
	ErrRoomNotFound = errors.New("room not found")
	// ErrAccessDenied is returned when the caller is not a participant of the room.
	ErrAccessDenied = errors.New("access denied to room")
)
