package dispatch

import (
	"time"

	"linehaul/store"
)

// validTransitions defines which status transitions are allowed.
// Completed and cancelled have no outgoing edges.
var validTransitions = map[string][]string{
	StatusPlanned:    {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusDispatched, StatusPlanned, StatusCancelled},
	StatusDispatched: {StatusInTransit, StatusAssigned, StatusCancelled},
	StatusInTransit:  {StatusCompleted, StatusDelayed, StatusCancelled},
	StatusDelayed:    {StatusInTransit, StatusCompleted, StatusCancelled},
}

// Statuses lists every dispatch status in lifecycle order.
var Statuses = []string{
	StatusPlanned, StatusAssigned, StatusDispatched, StatusInTransit,
	StatusDelayed, StatusCompleted, StatusCancelled,
}

// IsValidTransition checks if a status transition is allowed.
func IsValidTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the legal next statuses, empty (not nil) for
// terminal or unknown statuses.
func AllowedTransitions(from string) []string {
	out := make([]string, len(validTransitions[from]))
	copy(out, validTransitions[from])
	return out
}

// IsTerminal returns true if the status is a terminal state.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

func isKnownStatus(status string) bool {
	if IsTerminal(status) {
		return true
	}
	_, ok := validTransitions[status]
	return ok
}

// applyTransition validates from -> to on ev and writes the side-effect
// fields of an explicit status change.
func applyTransition(ev *store.DispatchEvent, to string, opts StatusOptions, now time.Time) error {
	if !IsValidTransition(ev.Status, to) {
		return errTransition(ev.Status, to)
	}
	ev.Status = to
	switch to {
	case StatusCancelled:
		ev.CancellationReason = opts.CancellationReason
		ev.CancellationNotes = opts.CancellationNotes
	case StatusCompleted:
		ev.ActualCompletionTime = &now
	}
	return nil
}

// applyAssignment sets the driver and applies the planned/assigned side
// transition, which bypasses the transition table. Returns true when the
// status changed.
func applyAssignment(ev *store.DispatchEvent, driverID *int64) bool {
	ev.AssignedDriverID = driverID
	switch {
	case driverID != nil && ev.Status == StatusPlanned:
		ev.Status = StatusAssigned
		return true
	case driverID == nil && ev.Status == StatusAssigned:
		ev.Status = StatusPlanned
		return true
	}
	return false
}
