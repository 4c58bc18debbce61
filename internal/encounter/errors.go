package encounter

import "fmt"

// NotFoundError indicates a case, session, or previous session could not
// be resolved.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ForbiddenError indicates an operation is not allowed in the session's
// current state, e.g. asking on an ended session.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

// InvalidArgumentError indicates malformed caller input: a bad session
// identifier or an unknown action type.
type InvalidArgumentError struct {
	Reason string
	Err    error
}

func (e *InvalidArgumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid argument: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid argument: %s", e.Reason)
}

func (e *InvalidArgumentError) Unwrap() error { return e.Err }

// InvalidStateError indicates the sessions involved are not in a state
// the operation requires, e.g. comparing unevaluated sessions.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: %s", e.Reason)
}

// InternalError indicates missing referential data or an unexpected
// failure inside the engine, including an aborted termination
// transaction.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal fault during %s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }
