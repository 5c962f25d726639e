package tasks

import (
	"errors"
	"fmt"
)

// OpError reports which phase of a reconciler operation failed.
//
// Err wraps one of the shared sentinel errors, so callers can use [errors.Is] on an OpError directly.
type OpError struct {
	Op         string // import, sync, create
	Phase      Phase
	PlaylistID string
	Err        error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s phase failed: %v", e.Op, e.Phase, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// PhaseOf returns the phase recorded in err, if err is or wraps an [OpError].
func PhaseOf(err error) (Phase, bool) {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Phase, true
	}
	return 0, false
}

func opError(op string, phase Phase, playlistID string, err error) error {
	return &OpError{Op: op, Phase: phase, PlaylistID: playlistID, Err: err}
}
