package domain

import "errors"

// Domain errors
var (
	ErrMatchNotFound    = errors.New("match not found")
	ErrMatchExists      = errors.New("match already exists")
	ErrPlayerNotFound   = errors.New("player not on match roster")
	ErrMatchFinished    = errors.New("match already finished")
	ErrInvalidCommand   = errors.New("invalid command")
	ErrUnknownCommand   = errors.New("unknown command kind")
	ErrMissingField     = errors.New("required field missing")
	ErrPeerUnreachable  = errors.New("peer not reachable")
	ErrSessionInactive  = errors.New("sync session not active")
	ErrInternalError    = errors.New("internal error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrMatchNotFound) || errors.Is(err, ErrPlayerNotFound)
}

// IsDroppableError reports whether a command failure is in the
// drop-and-log class that must never surface past the protocol boundary.
func IsDroppableError(err error) bool {
	return errors.Is(err, ErrInvalidCommand) ||
		errors.Is(err, ErrUnknownCommand) ||
		errors.Is(err, ErrMissingField) ||
		IsNotFoundError(err)
}
