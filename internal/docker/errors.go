package docker

import (
	"errors"
	"fmt"
)

// Sentinel errors for container operations. Every failure returned by a Runtime
// unwraps to exactly one of these.
var (
	// ErrNotInstalled indicates the runtime client (binary or library) is missing.
	ErrNotInstalled = errors.New("docker is not installed")

	// ErrDaemonNotRunning indicates the runtime daemon cannot be reached.
	ErrDaemonNotRunning = errors.New("docker daemon is not running")

	// ErrNotFound indicates the container does not exist.
	ErrNotFound = errors.New("container not found")

	// ErrConflict indicates the name is already taken, or a running container
	// was removed without force.
	ErrConflict = errors.New("container conflict")

	// ErrRejected indicates the runtime refused the request, e.g. a bad mount or
	// an image that cannot be resolved.
	ErrRejected = errors.New("rejected by container runtime")
)

// OpError describes a failed runtime call.
type OpError struct {
	Op   string // create, start, stop, remove, inspect, run
	Name string // container name or image reference
	Err  error  // one of the sentinel errors
	Msg  string // runtime diagnostic, verbatim
}

func (e *OpError) Error() string {
	s := fmt.Sprintf("docker %s %s: %v", e.Op, e.Name, e.Err)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

func (e *OpError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err means the runtime itself cannot be used.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrNotInstalled) || errors.Is(err, ErrDaemonNotRunning)
}

// IsNotFound reports whether err means the container does not exist.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is a recoverable naming or state conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
