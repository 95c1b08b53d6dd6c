// Package custody integrates with the external custodian that holds
// legal title. Each committed trade gets exactly one custodial transfer
// with its own state machine, advanced asynchronously.
package custody

import (
	"errors"
	"fmt"

	"lv-securities/internal/types"
)

var (
	// ErrTerminalState signals an attempted transition out of a terminal
	// status. A settled transfer can never be failed or cancelled; hitting
	// this is a programming error, not a condition to swallow.
	ErrTerminalState = errors.New("custody: transfer is in a terminal state")
	// ErrInvalidTransition signals a backwards or unknown transition.
	ErrInvalidTransition = errors.New("custody: invalid transfer transition")
)

var stageRank = map[types.TransferStatus]int{
	types.TransferStatusPending:   0,
	types.TransferStatusSubmitted: 1,
	types.TransferStatusConfirmed: 2,
	types.TransferStatusSettled:   3,
}

// ValidateTransition enforces the transfer state machine: forward-only
// through pending, submitted, confirmed, settled; failed and cancelled
// reachable from any non-terminal state.
func ValidateTransition(from, to types.TransferStatus) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrTerminalState, from, to)
	}
	if to == types.TransferStatusFailed || to == types.TransferStatusCancelled {
		return nil
	}
	fromRank, ok := stageRank[from]
	if !ok {
		return fmt.Errorf("%w: unknown status %s", ErrInvalidTransition, from)
	}
	toRank, ok := stageRank[to]
	if !ok {
		return fmt.Errorf("%w: unknown status %s", ErrInvalidTransition, to)
	}
	if toRank <= fromRank {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
