package monitor

// Outcome classifies what one evaluation step did.
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"   // stale or missing data, nothing written
	OutcomeAdjusted  Outcome = "adjusted"  // trailing level moved, no transition
	OutcomeRefreshed Outcome = "refreshed" // venue figures persisted
	OutcomeClosed    Outcome = "closed"    // FLAT dispatched, now CLOSE_PROCESSING
	OutcomeTriggered Outcome = "triggered" // limit filled, now PROCESSING
	OutcomeConflict  Outcome = "conflict"  // position changed underneath, aborted
	OutcomeFailed    Outcome = "failed"    // dispatch or persistence failure
	OutcomeInvalid   Outcome = "invalid"   // captured as an exception, untouched
)

// StepResult is the explicit result of evaluating one position.
type StepResult struct {
	PositionID uint
	Outcome    Outcome
	Reason     string
	Err        error
}

func skipped(id uint, reason string) StepResult {
	return StepResult{PositionID: id, Outcome: OutcomeSkipped, Reason: reason}
}
