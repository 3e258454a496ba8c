// Package decision holds the time-bounded correction policy for
// attendance authorization decisions. It is pure: callers supply the
// relevant timestamps and the clock reading, and get back a verdict.
package decision

import (
	"fmt"
	"time"

	"campus-access-backend/internal/model"
)

// DefaultGrace is the correction window applied when none is configured.
const DefaultGrace = 5 * time.Minute

// WindowExpiredError reports a correction attempted outside the grace
// period. Deadline is the instant at which the window closed.
type WindowExpiredError struct {
	Transition string
	Deadline   time.Time
}

func (e *WindowExpiredError) Error() string {
	return fmt.Sprintf("correction window for %s expired at %s",
		e.Transition, e.Deadline.Format(time.RFC3339))
}

// Window decides whether an authorization state change is allowed.
type Window struct {
	Grace time.Duration
}

// NewWindow returns a Window with the given grace period, falling back
// to DefaultGrace when it is not positive.
func NewWindow(grace time.Duration) Window {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return Window{Grace: grace}
}

// Check validates the transition from/to against the record's history.
//
//   - authorized -> denied is allowed while now is within Grace of the
//     original scan timestamp.
//   - denied -> authorized (a reversal) is allowed while now is within
//     Grace of the denial decision. When the record carries no decision
//     timestamp the original scan timestamp is used instead, so stale
//     denials stay final.
//   - A transition to the current state is a no-op and always allowed.
//
// Clock source is wall-clock; a backwards adjustment can widen the
// window. Known fragility, accepted.
func (w Window) Check(recordTS time.Time, decisionTS *time.Time, from, to string, now time.Time) error {
	if from == to {
		return nil
	}

	switch to {
	case model.StateDenied:
		deadline := recordTS.Add(w.Grace)
		if now.After(deadline) {
			return &WindowExpiredError{Transition: "denial", Deadline: deadline}
		}
	case model.StateAuthorized:
		base := recordTS
		if decisionTS != nil {
			base = *decisionTS
		}
		deadline := base.Add(w.Grace)
		if now.After(deadline) {
			return &WindowExpiredError{Transition: "reversal", Deadline: deadline}
		}
	default:
		return fmt.Errorf("unknown authorization state %q", to)
	}
	return nil
}
