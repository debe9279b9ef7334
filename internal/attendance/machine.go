package attendance

// The daily state machine. An entity's first log of the UTC day fixes which
// of two paths it is on for the rest of that day:
//
//	walk-in: IN -> OUT
//	bus:     BUS_IN -> IN -> OUT -> BUS_OUT
//
// The path is recomputed from the earliest log at every validation; no flag
// is stored.

var busDayNext = map[Status]Status{
	StatusBusIn: StatusIn,
	StatusIn:    StatusOut,
	StatusOut:   StatusBusOut,
}

var walkInDayNext = map[Status]Status{
	StatusIn: StatusOut,
}

// Decide validates a requested status against the entity's existing logs for
// the day, ordered ascending. On success it returns (nil, nil), meaning a new
// log may be appended. A non-nil Log with a nil error is the redundant
// duplicate scan case: the caller must return that log unchanged and append
// nothing. entityName is only used in error messages.
func Decide(todays []Log, requested Status, entityName string) (*Log, error) {
	// ABSENT is reserved for the end-of-day sweep and never travels the
	// normal transition path.
	if requested == StatusAbsent {
		last := Status("")
		if len(todays) > 0 {
			last = todays[len(todays)-1].Status
		}
		return nil, &InvalidTransitionError{
			Last:      last,
			Requested: requested,
			Msg:       "ABSENT can only be recorded by the absence sweep",
		}
	}

	if len(todays) == 0 {
		// First action of the day: entering only.
		if requested == StatusOut || requested == StatusBusOut {
			return nil, invalidFirstAction(requested)
		}
		return nil, nil
	}

	first := todays[0]
	last := todays[len(todays)-1]
	busDay := first.Status == StatusBusIn

	// Repeating the last entry status is an accidental double-scan; absorb
	// it rather than erroring.
	if requested == last.Status && (requested == StatusIn || requested == StatusBusIn) {
		dup := last
		return &dup, nil
	}

	if busDay {
		expected, ok := busDayNext[last.Status]
		if !ok || requested != expected {
			if last.Status == StatusBusOut {
				return nil, cycleComplete(entityName, last.Status, requested, true)
			}
			return nil, invalidSequence(last.Status, expected, requested)
		}
		return nil, nil
	}

	// Walk-in day: bus actions are never legal.
	if requested == StatusBusIn || requested == StatusBusOut {
		return nil, notBusDay(entityName, last.Status, requested)
	}
	expected, ok := walkInDayNext[last.Status]
	if !ok || requested != expected {
		if last.Status == StatusOut {
			return nil, cycleComplete(entityName, last.Status, requested, false)
		}
		return nil, invalidSequence(last.Status, expected, requested)
	}
	return nil, nil
}
