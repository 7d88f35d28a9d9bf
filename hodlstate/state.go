// Package hodlstate defines the closed set of decisions that can be recorded
// for a held payment and their canonical text encoding.
package hodlstate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownState is returned when a stored decision does not decode to one
// of the known states. It signals a corrupted or foreign record and must
// never be mapped to a default state.
var ErrUnknownState = errors.New("unknown hodl state")

// State is the decision recorded for a managed payment.
type State uint8

const (
	// Hodl means no decision has been made yet and the payment must be
	// held.
	Hodl State = iota

	// Accept means the operator released the payment.
	Accept

	// Reject means the operator refused the payment.
	Reject
)

// String returns the canonical encoding of the state. This is the exact
// value written to the decision store.
func (s State) String() string {
	switch s {
	case Hodl:
		return "Hodl"
	case Accept:
		return "Accept"
	case Reject:
		return "Reject"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// IsTerminal returns true once the operator has decided.
func (s State) IsTerminal() bool {
	return s == Accept || s == Reject
}

// Parse decodes a stored decision. Matching is case-insensitive.
func Parse(s string) (State, error) {
	switch strings.ToLower(s) {
	case "hodl":
		return Hodl, nil
	case "accept":
		return Accept, nil
	case "reject":
		return Reject, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownState, s)
	}
}
