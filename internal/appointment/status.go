package appointment

// Transition is a named, guarded lifecycle operation.
type Transition string

const (
	TransitionConfirm    Transition = "confirm"
	TransitionCancel     Transition = "cancel"
	TransitionReschedule Transition = "reschedule"
)

// transitionTargets maps each named transition to the status it lands in.
// Every transition is accepted from every state. Whether cancelled should be
// terminal, or completed reachable only from confirmed, is an open product
// question; the matrix stays permissive until that is settled.
var transitionTargets = map[Transition]Status{
	TransitionConfirm:    StatusConfirmed,
	TransitionCancel:     StatusCancelled,
	TransitionReschedule: StatusPending,
}

// NextStatus returns the status an appointment in from moves to under tr.
func NextStatus(tr Transition, from Status) (Status, bool) {
	to, ok := transitionTargets[tr]
	if !ok {
		return from, false
	}
	return to, true
}

// ChecksConflicts reports whether tr must pass the conflict checker.
func (tr Transition) ChecksConflicts() bool {
	return tr == TransitionReschedule
}

// BlocksSchedule reports whether an appointment in this status occupies its
// time for conflict checks and calendar views.
func (s Status) BlocksSchedule() bool {
	return s != StatusCancelled
}
