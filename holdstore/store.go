// Package holdstore provides typed access to the decision records of managed
// payments. A record is addressed by the plugin namespace and an identifier,
// which is either a payment hash or an invoice label.
package holdstore

import (
	"context"
	"errors"

	"github.com/decred/hodlvoice/hodlstate"
)

// Namespace is the first key component of every record written by this
// package.
const Namespace = "hodlvoice"

var (
	// ErrRecordExists is returned by Create when a record for the id is
	// already present.
	ErrRecordExists = errors.New("hold record already exists")

	// ErrRecordNotFound is returned by Replace and ReplaceIf when no
	// record exists for the id.
	ErrRecordNotFound = errors.New("hold record not found")

	// ErrGenerationMismatch is returned by ReplaceIf when the record was
	// modified since it was read.
	ErrGenerationMismatch = errors.New("hold record generation mismatch")

	// ErrCorruptRecord is returned when a stored record cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt hold record")
)

// Record is a stored decision.
type Record struct {
	// ID is the payment hash or label the record is keyed by.
	ID string

	// Value is the stored state text, exactly as found in the store. It
	// is decoded by the caller so an unknown value surfaces as an error
	// at the point of use.
	Value string

	// Generation is incremented by every successful write.
	Generation uint64
}

// Store is the read/write contract of a decision store.
type Store interface {
	// Lookup returns every record stored under id. A consistent store
	// returns zero or one record.
	Lookup(ctx context.Context, id string) ([]*Record, error)

	// Create writes a new record and fails with ErrRecordExists if one is
	// already present.
	Create(ctx context.Context, id string, state hodlstate.State) error

	// Replace overwrites an existing record and fails with
	// ErrRecordNotFound if there is none.
	Replace(ctx context.Context, id string, state hodlstate.State) error

	// ReplaceIf overwrites an existing record only if its generation
	// still matches.
	ReplaceIf(ctx context.Context, id string, generation uint64,
		state hodlstate.State) error

	// Close releases the resources held by the store.
	Close() error
}
