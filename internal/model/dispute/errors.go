package dispute

import "errors"

var (
	ErrNotFound            = errors.New("disagreement not found")
	ErrConflict            = errors.New("disagreement was modified concurrently")
	ErrAlreadyExists       = errors.New("disagreement already exists")
	ErrNotAParticipant     = errors.New("user is not a participant of this disagreement")
	ErrParticipantInactive = errors.New("participant is not active")
	ErrSessionResolved     = errors.New("disagreement is already resolved")
	ErrAlreadyParticipant  = errors.New("user is already a participant")
	ErrEmptyMessage        = errors.New("message text is required")
	ErrTitleRequired       = errors.New("title is required")
	ErrCreatorRequired     = errors.New("creator id is required")
	ErrReservedUserID      = errors.New("user id is reserved for the mediator")
)
