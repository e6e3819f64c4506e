// Package commands models the device-command lifecycle and the transitions a
// client is allowed to request. Illegal transitions are rejected locally so
// no round-trip is wasted on an update the backend would refuse anyway.
package commands

import (
	"fmt"

	"github.com/yonomi/thincloud-sdk/internal/errs"
	"github.com/yonomi/thincloud-sdk/internal/models"
)

// transitions holds every edge of the command lifecycle. The backend remains
// the source of truth; this table mirrors it.
var transitions = map[models.CommandState][]models.CommandState{
	models.CommandStatePending: {
		models.CommandStateQueued,
		models.CommandStateAck,
		models.CommandStateRevoked,
	},
	models.CommandStateQueued: {
		models.CommandStateAck,
		models.CommandStateRevoked,
	},
	models.CommandStateAck: {
		models.CommandStateCompleted,
		models.CommandStateNack,
		models.CommandStateSuccessful,
		models.CommandStateFailed,
	},
}

// clientTransitions is the subset of edges client code may request: picking a
// command up (Ack) and reporting its terminal outcome.
var clientTransitions = map[models.CommandState][]models.CommandState{
	models.CommandStatePending: {models.CommandStateAck},
	models.CommandStateQueued:  {models.CommandStateAck},
	models.CommandStateAck: {
		models.CommandStateCompleted,
		models.CommandStateNack,
		models.CommandStateSuccessful,
		models.CommandStateFailed,
	},
}

// terminal states admit no further transitions.
var terminal = map[models.CommandState]bool{
	models.CommandStateCompleted:  true,
	models.CommandStateSuccessful: true,
	models.CommandStateFailed:     true,
	models.CommandStateRevoked:    true,
}

// IsTerminal reports whether state ends the command lifecycle.
func IsTerminal(state models.CommandState) bool {
	return terminal[state]
}

// CanTransition reports whether the lifecycle permits moving from one state
// to another, regardless of who requests it.
func CanTransition(from, to models.CommandState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateClientTransition checks that client code is permitted to request
// the given transition. It returns ErrInvalidTransition otherwise.
func ValidateClientTransition(from, to models.CommandState) error {
	for _, next := range clientTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", errs.ErrInvalidTransition, from, to)
}
