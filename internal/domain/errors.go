package domain

import "errors"

// ErrNotFound is returned by the repository when no record exists at the
// requested location.
var ErrNotFound = errors.New("reference not found")

// ErrTokenMismatch is returned by the shutdown protocol when the presented
// token does not match the one minted at backend creation.
var ErrTokenMismatch = errors.New("invalid authentication token")

// ArgumentError reports a caller programming error: a malformed start
// request. It is the only failure the start protocol raises synchronously.
type ArgumentError struct {
	Reason string
}

func (e *ArgumentError) Error() string { return e.Reason }

// FailureKind discriminates the create-path failures that are folded into a
// returned descriptor's error list.
type FailureKind int

const (
	FailureSpawn FailureKind = iota + 1
	FailureReadiness
	FailureUnknown
)

// StartFailure is a failed attempt to create a new backend. It is caught by
// the orchestrator and normalized to a string list at the boundary, never
// propagated to the caller.
type StartFailure struct {
	Kind FailureKind
	Err  error
}

func (f *StartFailure) Error() string {
	switch f.Kind {
	case FailureSpawn:
		if f.Err != nil {
			return "failed to spawn backend server process: " + f.Err.Error()
		}
		return "failed to spawn backend server process"
	case FailureReadiness:
		return "backend server unavailable: process failed to start or has timed out"
	default:
		if f.Err != nil {
			return f.Err.Error()
		}
		return "unknown error while creating backend server"
	}
}

func (f *StartFailure) Unwrap() error { return f.Err }

// SpawnFailure wraps a spawn error from the launcher.
func SpawnFailure(err error) *StartFailure {
	return &StartFailure{Kind: FailureSpawn, Err: err}
}

// ReadinessFailure marks a backend that never reported ready within the
// probe window.
func ReadinessFailure() *StartFailure {
	return &StartFailure{Kind: FailureReadiness}
}

// UnknownFailure wraps any other error raised while creating a backend.
func UnknownFailure(err error) *StartFailure {
	return &StartFailure{Kind: FailureUnknown, Err: err}
}
