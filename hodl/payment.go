package hodl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/decred/hodlvoice/hodlstate"
	"github.com/decred/hodlvoice/monitoring"
	"github.com/google/uuid"
)

const hookInvoicePayment = "invoice_payment"

type invoicePaymentEvent struct {
	Payment *struct {
		Label *string `json:"label"`
	} `json:"payment"`
}

// HandleInvoicePayment evaluates an invoice_payment hook call. Payments of
// unmanaged invoices are continued immediately. Payments of managed invoices
// are held until their decision record is accepted or rejected.
func (r *Registry) HandleInvoicePayment(ctx context.Context,
	params json.RawMessage) (Resolution, error) {

	var event invoicePaymentEvent
	if err := json.Unmarshal(params, &event); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.Payment == nil || event.Payment.Label == nil {
		log.Debugf("Invoice payment without label, continuing")
		return ResolutionContinue, nil
	}
	label := *event.Payment.Label

	evalID := uuid.New()
	res, reason, err := r.evaluatePayment(ctx, evalID, label)
	if err != nil {
		r.cfg.Metrics.Resolved(
			hookInvoicePayment, monitoring.OutcomeError, reason,
		)
		return "", err
	}

	log.Debugf("Evaluation %v of payment %q resolved with %s (%s)",
		evalID, label, res, reason)
	r.cfg.Metrics.Resolved(hookInvoicePayment, outcome(res), reason)
	return res, nil
}

func (r *Registry) evaluatePayment(ctx context.Context, evalID uuid.UUID,
	label string) (Resolution, string, error) {

	wake, cancel := r.notifier.subscribe(label)
	defer cancel()

	holding := false
	defer func() {
		if holding {
			r.cfg.Metrics.HoldEnded(hookInvoicePayment)
		}
	}()

	for {
		record, err := r.lookup(ctx, label)
		switch {
		case errors.Is(err, errLookupFailed) && !r.cfg.StrictStoreErrors:
			log.Warnf("Evaluation %v: %v, continuing payment %q",
				evalID, err, label)
			return ResolutionContinue, "store_error", nil

		case err != nil:
			return "", "store_error", err

		case record == nil:
			return ResolutionContinue, "unmanaged", nil
		}

		state, err := hodlstate.Parse(record.Value)
		if err != nil {
			return "", "invalid_state", fmt.Errorf("record %q: %w",
				label, err)
		}

		switch state {
		case hodlstate.Accept:
			return ResolutionContinue, "accepted", nil

		case hodlstate.Reject:
			return ResolutionReject, "rejected", nil
		}

		if !holding {
			holding = true
			r.cfg.Metrics.HoldStarted(hookInvoicePayment)
			log.Infof("Evaluation %v: holding payment %q", evalID,
				label)
		}

		err = r.wait(ctx, wake, r.cfg.PaymentPollInterval)
		if err != nil {
			return "", "cancelled", err
		}
	}
}
