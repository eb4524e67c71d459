package lorawan

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrContractViolation is returned for malformed input: wrong buffer
	// lengths, an empty header or a payload that does not fit a frame.
	ErrContractViolation = errors.New("lorawan: contract violation")

	// ErrAuthenticationFailure is returned when a received MIC does not match.
	// Plaintext is never returned together with this error.
	ErrAuthenticationFailure = errors.New("lorawan: MIC verification failed")
)

// FrameState is a state of the Seal and Open state machines
type FrameState int

const (
	StateStart FrameState = iota
	StateCiphering
	StateAuthenticating
	StateDone
	StateRejected
)

func (s FrameState) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateCiphering:
		return "ciphering"
	case StateAuthenticating:
		return "authenticating"
	case StateDone:
		return "done"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("FrameState(%d)", int(s))
	}
}

// FrameError records the state in which a Seal or Open operation stopped
type FrameError struct {
	Op    string
	State FrameState
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%s frame (%s): %v", e.Op, e.State, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}
