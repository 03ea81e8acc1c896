package ledger

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("ledger: invalid status transition")

var transitions = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusRefunded},
}

// ValidateTransition rejects any status change outside the settlement state machine.
func ValidateTransition(from, to Status) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
