package hodl

import (
	"fmt"
	"time"

	"github.com/decred/hodlvoice/chainstate"
	"github.com/decred/hodlvoice/holdstore"
	"github.com/decred/hodlvoice/monitoring"
	"golang.org/x/time/rate"
)

const (
	// DefaultHoldSafetyBlocks is the number of blocks of timelock margin
	// that must remain on a held htlc. It is added to the cltv delta to
	// form the final cltv requirement of every hold invoice, and a held
	// htlc is failed back once less margin than this remains.
	DefaultHoldSafetyBlocks = 200

	// DefaultHTLCPollInterval is how often a pending htlc evaluation
	// re-reads its decision record.
	DefaultHTLCPollInterval = 2 * time.Second

	// DefaultPaymentPollInterval is how often a pending invoice payment
	// evaluation re-reads its decision record.
	DefaultPaymentPollInterval = 3 * time.Second
)

// KeyMode selects what decision records are keyed by, and with it which hook
// manages the payments.
type KeyMode uint8

const (
	// KeyPaymentHash keys records by payment hash. Payments are held
	// per htlc by the htlc_accepted hook.
	KeyPaymentHash KeyMode = iota

	// KeyLabel keys records by invoice label. Payments are held once
	// fully received by the invoice_payment hook.
	KeyLabel
)

// String returns the configuration name of the mode.
func (m KeyMode) String() string {
	switch m {
	case KeyPaymentHash:
		return "hash"
	case KeyLabel:
		return "label"
	default:
		return fmt.Sprintf("KeyMode(%d)", uint8(m))
	}
}

// ParseKeyMode parses a configuration name as returned by String.
func ParseKeyMode(s string) (KeyMode, error) {
	switch s {
	case "hash":
		return KeyPaymentHash, nil
	case "label":
		return KeyLabel, nil
	default:
		return 0, fmt.Errorf("unknown key mode %q, must be hash or "+
			"label", s)
	}
}

// Config holds the collaborators and tunables of a Registry.
type Config struct {
	// Store holds the decision records.
	Store holdstore.Store

	// Invoices mints and looks up invoices.
	Invoices InvoiceService

	// Chain provides the chain tip and the cltv delta.
	Chain *chainstate.Tracker

	// KeyMode selects what records are keyed by.
	KeyMode KeyMode

	// HoldSafetyBlocks is the timelock margin kept on held htlcs.
	HoldSafetyBlocks uint32

	// HTLCPollInterval is the poll interval of htlc evaluations.
	HTLCPollInterval time.Duration

	// PaymentPollInterval is the poll interval of invoice payment
	// evaluations.
	PaymentPollInterval time.Duration

	// StrictStoreErrors makes a failed store lookup a hard error instead
	// of treating the payment as unmanaged.
	StrictStoreErrors bool

	// StrictResolve only allows resolving records that are still held.
	StrictResolve bool

	// LookupLimiter, if set, bounds the aggregate rate of store lookups
	// made by pending evaluations.
	LookupLimiter *rate.Limiter

	// Metrics may be nil.
	Metrics *monitoring.Metrics

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}
