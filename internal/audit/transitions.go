package audit

import "fmt"

// Rank orders statuses along the lifecycle. Both terminal statuses share the
// highest rank.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s.Rank() >= 0
}

// ParseStatus converts wire input to a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, raw)
	}
	return s, nil
}

// Outcome classifies a requested transition against the current status.
type Outcome int

// Transition outcomes.
const (
	// Apply means the store should be updated.
	Apply Outcome = iota
	// NoOp means the request repeats the current state.
	NoOp
	// Reject means the transition is not allowed.
	Reject
)

// Evaluate decides how a transition from -> to should be handled.
func Evaluate(from, to Status) Outcome {
	if from == to && (to.Terminal() || to == StatusProcessing) {
		return NoOp
	}
	switch {
	case from == StatusPending && to == StatusProcessing,
		from == StatusPending && to == StatusFailed,
		from == StatusProcessing && to == StatusCompleted,
		from == StatusProcessing && to == StatusFailed:
		return Apply
	}
	return Reject
}
