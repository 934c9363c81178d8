// Package workflow defines the order production state machine:
//
//	New → In Progress → Trial → {Alteration, Completed} → Delivered
//
// Trial is the only branch point (garment fits or needs rework); Delivered
// is terminal. The functions are pure and drive both the actions offered in
// a UI and the validation of an attempted transition.
package workflow

import "github.com/atelierhq/api/internal/enum"

// successors maps each status to the statuses directly reachable from it.
// Delivered has no entry, making it terminal.
var successors = map[string][]string{
	enum.OrderStatusNew:        {enum.OrderStatusInProgress},
	enum.OrderStatusInProgress: {enum.OrderStatusTrial},
	enum.OrderStatusTrial:      {enum.OrderStatusAlteration, enum.OrderStatusCompleted},
	enum.OrderStatusAlteration: {enum.OrderStatusCompleted},
	enum.OrderStatusCompleted:  {enum.OrderStatusDelivered},
}

// NextStatuses returns the statuses an order may move to from current.
// An unrecognized status yields an empty set rather than an error; callers
// use the empty set to disable actions, so leniency here is deliberate
// documented behavior, not an accident.
func NextStatuses(current string) []string {
	next, ok := successors[current]
	if !ok {
		return nil
	}
	out := make([]string, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether moving from current to next is legal.
func CanTransition(current, next string) bool {
	for _, s := range successors[current] {
		if s == next {
			return true
		}
	}
	return false
}

// IsValid reports whether s is one of the six defined order statuses.
func IsValid(s string) bool {
	switch s {
	case enum.OrderStatusNew, enum.OrderStatusInProgress, enum.OrderStatusTrial,
		enum.OrderStatusAlteration, enum.OrderStatusCompleted, enum.OrderStatusDelivered:
		return true
	}
	return false
}

// IsTerminal reports whether s has no successors among the defined statuses.
func IsTerminal(s string) bool {
	return s == enum.OrderStatusDelivered
}
