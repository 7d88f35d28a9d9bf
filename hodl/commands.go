package hodl

import (
	"context"
	"fmt"
	"strings"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/hodlvoice/hodlstate"
	"github.com/decred/hodlvoice/holdstore"
)

// ResolveResult is returned by Accept and Reject.
type ResolveResult struct {
	Key   string `json:"key"`
	State string `json:"state"`
}

// StatusResult is returned by Status.
type StatusResult struct {
	Key        string `json:"key"`
	State      string `json:"state"`
	Generation uint64 `json:"generation"`
}

// AddInvoice mints a hold invoice and records it as held. The invoice's
// final cltv requirement covers the hold safety margin plus the configured
// cltv delta, so a payment can be held for that many blocks.
func (r *Registry) AddInvoice(ctx context.Context, p *AddParams) (*Invoice, error) {
	cltv := r.cfg.HoldSafetyBlocks + r.cfg.Chain.Snapshot().CLTVDelta

	inv, err := r.cfg.Invoices.CreateInvoice(ctx, &InvoiceRequest{
		AmountMsat:            p.AmountMsat,
		Label:                 p.Label,
		Description:           p.Description,
		CLTV:                  cltv,
		Expiry:                p.Expiry,
		Fallbacks:             p.Fallbacks,
		Preimage:              p.Preimage,
		ExposePrivateChannels: p.ExposePrivateChannels,
		DescHashOnly:          p.DescHashOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create invoice %q: %w",
			p.Label, err)
	}

	key := p.Label
	if r.cfg.KeyMode == KeyPaymentHash {
		key = strings.ToLower(inv.PaymentHash)
	}

	err = r.cfg.Store.Create(ctx, key, hodlstate.Hodl)
	if err != nil {
		// An invoice without a record would be paid without being
		// held.
		delErr := r.cfg.Invoices.DeleteUnpaidInvoice(ctx, p.Label)
		if delErr != nil {
			log.Errorf("Unable to delete unmanaged invoice %q: %v",
				p.Label, delErr)
		}
		return nil, fmt.Errorf("unable to record hold invoice %s: %w",
			key, err)
	}

	log.Infof("Added hold invoice %q (payment hash %s, cltv %d)",
		p.Label, inv.PaymentHash, cltv)

	return inv, nil
}

// Accept resolves the hold on key so that its payment settles.
func (r *Registry) Accept(ctx context.Context, key string) (*ResolveResult, error) {
	return r.resolve(ctx, key, hodlstate.Accept)
}

// Reject resolves the hold on key so that its payment is failed back.
func (r *Registry) Reject(ctx context.Context, key string) (*ResolveResult, error) {
	return r.resolve(ctx, key, hodlstate.Reject)
}

// Status returns the recorded decision for key.
func (r *Registry) Status(ctx context.Context, key string) (*StatusResult, error) {
	key, err := r.normalizeKey(key)
	if err != nil {
		return nil, err
	}

	record, err := r.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", holdstore.ErrRecordNotFound,
			key)
	}

	state, err := hodlstate.Parse(record.Value)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", key, err)
	}

	return &StatusResult{
		Key:        key,
		State:      state.String(),
		Generation: record.Generation,
	}, nil
}

// normalizeKey validates an operator supplied key for the key mode.
func (r *Registry) normalizeKey(key string) (string, error) {
	if r.cfg.KeyMode != KeyPaymentHash {
		return key, nil
	}

	if len(key) != chainhash.MaxHashStringSize {
		return "", fmt.Errorf("%w: payment hash must be %d hex "+
			"characters", ErrInvalidParams,
			chainhash.MaxHashStringSize)
	}
	var h chainhash.Hash
	if err := chainhash.Decode(&h, key); err != nil {
		return "", fmt.Errorf("%w: invalid payment hash: %v",
			ErrInvalidParams, err)
	}

	return strings.ToLower(key), nil
}

func (r *Registry) resolve(ctx context.Context, key string,
	state hodlstate.State) (*ResolveResult, error) {

	key, err := r.normalizeKey(key)
	if err != nil {
		return nil, err
	}

	if r.cfg.StrictResolve {
		err = r.resolveStrict(ctx, key, state)
	} else {
		err = r.cfg.Store.Replace(ctx, key, state)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to %s %s: %w",
			strings.ToLower(state.String()), key, err)
	}

	n := r.notifier.notify(key)
	log.Infof("Resolved %s as %v, woke %d pending evaluation(s)", key,
		state, n)

	return &ResolveResult{Key: key, State: state.String()}, nil
}

// resolveStrict writes state only while the record is still held. Writing
// the state a record already has is a no-op.
func (r *Registry) resolveStrict(ctx context.Context, key string,
	state hodlstate.State) error {

	record, err := r.lookup(ctx, key)
	if err != nil {
		return err
	}
	if record == nil {
		return holdstore.ErrRecordNotFound
	}

	current, err := hodlstate.Parse(record.Value)
	if err != nil {
		return err
	}

	switch {
	case current == state:
		return nil

	case current.IsTerminal():
		return fmt.Errorf("%w as %v", ErrAlreadyResolved, current)
	}

	return r.cfg.Store.ReplaceIf(ctx, key, record.Generation, state)
}
