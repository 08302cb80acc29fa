package playout

import (
	"errors"
	"fmt"
	"net/http"
)

// ClientError is a rejected user action. Code follows HTTP status semantics
// and Key identifies the reason for clients.
type ClientError struct {
	Code    int
	Key     string
	Message string
}

func (e *ClientError) Error() string {
	return e.Message
}

// Is matches client errors by key, so that errors.Is works for errors built
// with reject.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	return ok && t.Key == e.Key
}

func newClientError(code int, key, message string) *ClientError {
	return &ClientError{Code: code, Key: key, Message: message}
}

var (
	ErrPlaylistNotActive      = newClientError(http.StatusPreconditionFailed, "playlist_not_active", "Rundown playlist is not active")
	ErrPlaylistActive         = newClientError(http.StatusPreconditionFailed, "playlist_active", "Rundown playlist is active")
	ErrNoNextPart             = newClientError(http.StatusPreconditionFailed, "no_next_part", "No next part is set")
	ErrHoldInProgress         = newClientError(http.StatusPreconditionFailed, "hold_in_progress", "A hold is in progress")
	ErrHoldNotAllowed         = newClientError(http.StatusBadRequest, "hold_not_allowed", "Hold is not possible between these parts")
	ErrHoldNotPending         = newClientError(http.StatusPreconditionFailed, "hold_not_pending", "No hold is pending")
	ErrActivePlaylistConflict = newClientError(http.StatusConflict, "active_playlist_conflict", "Another rundown playlist is active in this studio")
	ErrTakeTooSoon            = newClientError(http.StatusPreconditionFailed, "take_too_soon", "Take was rejected because it came too soon")
	ErrTransitionInProgress   = newClientError(http.StatusPreconditionFailed, "transition_in_progress", "The previous take is still transitioning")
	ErrPartNotPlayable        = newClientError(http.StatusBadRequest, "part_not_playable", "Part is not playable")
	ErrPartNotCurrent         = newClientError(http.StatusPreconditionFailed, "part_not_current", "Part instance is not on air")
	ErrNothingToDisable       = newClientError(http.StatusPreconditionFailed, "nothing_to_disable", "There is no piece to disable")
	ErrMoveOutOfRange         = newClientError(http.StatusBadRequest, "move_out_of_range", "There is no part to move to")
	ErrNotFound               = newClientError(http.StatusNotFound, "not_found", "Not found")
	ErrRundownUnsynced        = newClientError(http.StatusPreconditionFailed, "rundown_unsynced", "Rundown is unsynced and must be resynced")
	ErrInvalidPayload         = newClientError(http.StatusBadRequest, "invalid_payload", "Invalid payload")
)

// reject returns a copy of base with a specific message.
func reject(base *ClientError, format string, args ...any) *ClientError {
	return &ClientError{Code: base.Code, Key: base.Key, Message: fmt.Sprintf(format, args...)}
}

// Rejectf is reject for other services that run playlist operations.
func Rejectf(base *ClientError, format string, args ...any) error {
	return reject(base, format, args...)
}

// AsClientError returns the client error in err's chain, if any.
func AsClientError(err error) (*ClientError, bool) {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
