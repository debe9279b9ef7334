package attendance

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a missing entity, or an entity outside the caller's
// school scope (the two are deliberately indistinguishable to callers).
var ErrNotFound = errors.New("not found")

// AuthorizationError reports a valid caller with insufficient role or scope.
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string { return e.Msg }

// InvalidTransitionError is the core validation failure. It always carries
// the offending last status and the requested status for diagnostics.
type InvalidTransitionError struct {
	Last      Status // empty when no log exists yet today
	Requested Status
	Msg       string
}

func (e *InvalidTransitionError) Error() string { return e.Msg }

// MalformedInputError reports an unparseable QR payload or a missing field.
type MalformedInputError struct {
	Msg string
}

func (e *MalformedInputError) Error() string { return e.Msg }

func invalidFirstAction(requested Status) error {
	return &InvalidTransitionError{
		Requested: requested,
		Msg:       fmt.Sprintf("cannot mark %s as the first action of the day", requested),
	}
}

func cycleComplete(name string, last, requested Status, bus bool) error {
	kind := "attendance"
	if bus {
		kind = "bus attendance"
	}
	return &InvalidTransitionError{
		Last:      last,
		Requested: requested,
		Msg:       fmt.Sprintf("%s has already completed the %s cycle for today", name, kind),
	}
}

func invalidSequence(last, expected, requested Status) error {
	want := "nothing"
	if expected != "" {
		want = string(expected)
	}
	return &InvalidTransitionError{
		Last:      last,
		Requested: requested,
		Msg:       fmt.Sprintf("invalid sequence: after %s, expected %s but got %s", last, want, requested),
	}
}

func notBusDay(name string, last, requested Status) error {
	return &InvalidTransitionError{
		Last:      last,
		Requested: requested,
		Msg:       fmt.Sprintf("cannot perform bus action: %s did not check in with the bus this morning", name),
	}
}
