package scheduler

import "fmt"

// SchedError is a custom error type for scheduler-core errors, distinguishing
// scheduler bugs (invariant violations, always fatal) from recoverable
// device/config errors.
type SchedError struct {
	Message string
}

func (e SchedError) Error() string {
	return fmt.Sprintf("scheduler error: %s", e.Message)
}

// ErrInvalidConfig creates an error for invalid configuration.
func ErrInvalidConfig(msg string) error {
	return SchedError{Message: fmt.Sprintf("invalid config: %s", msg)}
}

// ErrInvariantViolation creates an error for a broken scheduler invariant.
// Callers of Scheduler methods should treat this as a bug report, not a
// recoverable condition.
func ErrInvariantViolation(msg string) error {
	return SchedError{Message: fmt.Sprintf("invariant violation: %s", msg)}
}

// DeviceFailureError is returned by ExecuteSoonestEvents/
// FinishAllEventsUntilThisTime when the device model reports FAILURE for an issued event. The op's
// dependency queue has already been erased by the time this is returned.
type DeviceFailureError struct {
	OpID  OpID
	Event *Event
}

func (e *DeviceFailureError) Error() string {
	return fmt.Sprintf("device reported failure for op %d event %d (%s)", e.OpID, e.Event.EventID, e.Event.Type)
}
