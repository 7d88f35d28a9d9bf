package hodl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/hodlvoice/hodlstate"
	"github.com/decred/hodlvoice/monitoring"
	"github.com/google/uuid"
)

const hookHTLCAccepted = "htlc_accepted"

// htlcAcceptedEvent holds the fields of an htlc_accepted hook call that are
// used to evaluate a held htlc.
type htlcAcceptedEvent struct {
	HTLC *struct {
		PaymentHash *string `json:"payment_hash"`
		CLTVExpiry  *uint32 `json:"cltv_expiry"`
	} `json:"htlc"`
}

// HandleHTLC evaluates an htlc_accepted hook call. Htlcs that pay no managed
// invoice are continued immediately. Htlcs of managed invoices are held
// until the decision record is accepted or rejected, or until holding them
// any longer would risk the upstream channel.
func (r *Registry) HandleHTLC(ctx context.Context, params json.RawMessage) (Resolution, error) {
	var event htlcAcceptedEvent
	if err := json.Unmarshal(params, &event); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.HTLC == nil || event.HTLC.PaymentHash == nil {
		log.Debugf("Htlc without payment hash, continuing")
		return ResolutionContinue, nil
	}
	if event.HTLC.CLTVExpiry == nil {
		return "", fmt.Errorf("%w: htlc for %s has no cltv_expiry",
			ErrMalformedEvent, *event.HTLC.PaymentHash)
	}

	paymentHash := strings.ToLower(*event.HTLC.PaymentHash)
	cltvExpiry := *event.HTLC.CLTVExpiry

	evalID := uuid.New()
	res, reason, err := r.evaluateHTLC(ctx, evalID, paymentHash, cltvExpiry)
	if err != nil {
		r.cfg.Metrics.Resolved(
			hookHTLCAccepted, monitoring.OutcomeError, reason,
		)
		return "", err
	}

	log.Debugf("Evaluation %v of htlc %s resolved with %s (%s)", evalID,
		paymentHash, res, reason)
	r.cfg.Metrics.Resolved(hookHTLCAccepted, outcome(res), reason)
	return res, nil
}

func (r *Registry) evaluateHTLC(ctx context.Context, evalID uuid.UUID,
	paymentHash string, cltvExpiry uint32) (Resolution, string, error) {

	wake, cancel := r.notifier.subscribe(paymentHash)
	defer cancel()

	// The delta is fixed for the whole evaluation. The height is re-read
	// on every iteration.
	cltvDelta := r.cfg.Chain.Snapshot().CLTVDelta

	var (
		invoice *InvoiceMeta
		holding bool
	)
	defer func() {
		if holding {
			r.cfg.Metrics.HoldEnded(hookHTLCAccepted)
		}
	}()

	for {
		record, err := r.lookup(ctx, paymentHash)
		switch {
		case errors.Is(err, errLookupFailed) && !r.cfg.StrictStoreErrors:
			log.Warnf("Evaluation %v: %v, continuing htlc %s",
				evalID, err, paymentHash)
			return ResolutionContinue, "store_error", nil

		case err != nil:
			return "", "store_error", err

		case record == nil:
			return ResolutionContinue, "unmanaged", nil
		}

		if invoice == nil {
			invoice, err = r.cfg.Invoices.LookupInvoice(
				ctx, paymentHash,
			)
			if err != nil {
				return "", "invoice_error", fmt.Errorf("unable "+
					"to look up invoice %s: %w",
					paymentHash, err)
			}
		}

		if r.cfg.Now().Unix() >= invoice.ExpiresAt {
			log.Infof("Evaluation %v: invoice %s expired, failing "+
				"htlc", evalID, paymentHash)
			return ResolutionFail, "expired", nil
		}

		height := r.cfg.Chain.Height()
		if timelockTooClose(cltvExpiry, cltvDelta, height,
			r.cfg.HoldSafetyBlocks) {

			log.Infof("Evaluation %v: htlc %s with cltv expiry %d "+
				"too close to height %d (delta %d, safety %d), "+
				"failing", evalID, paymentHash, cltvExpiry,
				height, cltvDelta, r.cfg.HoldSafetyBlocks)
			return ResolutionFail, "timelock", nil
		}

		state, err := hodlstate.Parse(record.Value)
		if err != nil {
			return "", "invalid_state", fmt.Errorf("record %s: %w",
				paymentHash, err)
		}

		switch state {
		case hodlstate.Accept:
			return ResolutionContinue, "accepted", nil

		case hodlstate.Reject:
			return ResolutionFail, "rejected", nil
		}

		if !holding {
			holding = true
			r.cfg.Metrics.HoldStarted(hookHTLCAccepted)
			log.Infof("Evaluation %v: holding htlc %s (cltv expiry "+
				"%d, height %d)", evalID, paymentHash,
				cltvExpiry, height)
		}

		err = r.wait(ctx, wake, r.cfg.HTLCPollInterval)
		if err != nil {
			return "", "cancelled", err
		}
	}
}
