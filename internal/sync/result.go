package sync

import (
	"fmt"
)

// TickAction tells the tick loop how to proceed after a per-article step
type TickAction int

const (
	// Continue moves on to the next article
	Continue TickAction = iota

	// StopBatch ends the tick after a per-article failure
	StopBatch

	// AbortTick ends the tick on a global failure
	AbortTick
)

// String returns the action name
func (a TickAction) String() string {
	switch a {
	case Continue:
		return "continue"
	case StopBatch:
		return "stop-batch"
	case AbortTick:
		return "abort-tick"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Abort reasons
const (
	ReasonAuthFailed         = "authentication-failed"
	ReasonConfigurationError = "configuration-error"
	ReasonStorageFailed      = "storage-failed"
	ReasonSelectionFailed    = "selection-failed"
)

// TickResult is the outcome of one per-article step
type TickResult struct {
	Action TickAction

	// Reason names the abort cause
	Reason string

	// Err is the failure behind StopBatch or AbortTick
	Err error
}

func continueTick() TickResult {
	return TickResult{Action: Continue}
}

func abortTick(reason string, err error) TickResult {
	return TickResult{Action: AbortTick, Reason: reason, Err: err}
}
