package request

import "time"

// NextAutoStatus evaluates the time-window rule for a scheduled request.
// It returns the status to move to and true when a transition is due.
//
//	now <  start        -> assigned
//	start <= now < end  -> unchanged
//	now >= end          -> delayed
//
// Terminal statuses and requests without both bounds never change.
func NextAutoStatus(current Status, now time.Time, estimatedStart *time.Time, estimatedEnd *time.Time) (Status, bool) {
	if current.IsTerminal() {
		return current, false
	}
	if estimatedStart == nil || estimatedEnd == nil {
		return current, false
	}

	switch {
	case now.Before(*estimatedStart):
		if current != StatusAssigned {
			return StatusAssigned, true
		}
	case !now.Before(*estimatedEnd):
		if current != StatusDelayed {
			return StatusDelayed, true
		}
	}
	return current, false
}

// ValidateSchedule requires a non-empty window.
func ValidateSchedule(from time.Time, to time.Time) error {
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return ErrInvalidSchedule
	}
	return nil
}
