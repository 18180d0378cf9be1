package app

// Error is a recoverable, caller-facing failure. Code is the stable
// wire discriminator; Message is the human-readable default text.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrEmptyName    = &Error{Code: "empty_name", Message: "display name is required"}
	ErrEmptyRoom    = &Error{Code: "empty_room", Message: "room code is required"}
	ErrNameTaken    = &Error{Code: "name_taken", Message: "that name is already in use"}
	ErrNotJoined    = &Error{Code: "not_joined", Message: "join a room first"}
	ErrEmptyMessage = &Error{Code: "empty_message", Message: "message cannot be empty"}
)
