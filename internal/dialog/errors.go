package dialog

import "errors"

// Dialog failure taxonomy. None of these are fatal: every one degrades to
// "re-prompt the current state" or "return to idle".
var (
	// ErrMissingPrecondition marks a confirm reached without required scratch
	// data; the flow aborts to idle and persists nothing.
	ErrMissingPrecondition = errors.New("missing precondition")

	// ErrUnrecognizedEvent marks a button tag that is not valid for the
	// current state; the current state is re-prompted.
	ErrUnrecognizedEvent = errors.New("unrecognized event")
)
