package hodl

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func paymentEvent(label string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"payment":{"label":%q,`+
		`"preimage":"00","msat":"1000msat"}}`, label))
}

func (c *testContext) handlePayment(ctx context.Context,
	params json.RawMessage) <-chan evalResult {

	results := make(chan evalResult, 1)
	go func() {
		res, err := c.registry.HandleInvoicePayment(ctx, params)
		results <- evalResult{res, err}
	}()
	return results
}

func labelMode(cfg *Config) {
	cfg.KeyMode = KeyLabel
}

// TestPaymentUnmanaged asserts that unmanaged and unlabeled payments are
// continued.
func TestPaymentUnmanaged(t *testing.T) {
	c, cleanup := newTestContext(t, labelMode)
	defer cleanup()

	ctx := context.Background()

	res, err := c.registry.HandleInvoicePayment(ctx, paymentEvent("x"))
	if err != nil || res != ResolutionContinue {
		t.Fatalf("expected continue, got %v (%v)", res, err)
	}

	res, err = c.registry.HandleInvoicePayment(
		ctx, json.RawMessage(`{"payment":{}}`),
	)
	if err != nil || res != ResolutionContinue {
		t.Fatalf("expected continue, got %v (%v)", res, err)
	}
}

// TestPaymentHeldUntilResolved asserts that a held payment is continued on
// accept and rejected on reject.
func TestPaymentHeldUntilResolved(t *testing.T) {
	c, cleanup := newTestContext(t, labelMode)
	defer cleanup()

	ctx := context.Background()
	for _, label := range []string{"to-accept", "to-reject"} {
		_, err := c.registry.AddInvoice(ctx, &AddParams{
			AmountMsat:  AmountMsat(5000),
			Description: "coffee",
			Label:       label,
		})
		if err != nil {
			t.Fatalf("unable to add invoice: %v", err)
		}
		if v, ok := c.store.value(label); !ok || v != "Hodl" {
			t.Fatalf("expected Hodl record for %s, got %q", label, v)
		}
	}

	accepted := c.handlePayment(ctx, paymentEvent("to-accept"))
	c.waitLookup(t, "to-accept")
	rejected := c.handlePayment(ctx, paymentEvent("to-reject"))
	c.waitLookup(t, "to-reject")

	assertNoResult(t, accepted)
	assertNoResult(t, rejected)

	if _, err := c.registry.Accept(ctx, "to-accept"); err != nil {
		t.Fatalf("unable to accept: %v", err)
	}
	assertResult(t, accepted, ResolutionContinue)
	assertNoResult(t, rejected)

	if _, err := c.registry.Reject(ctx, "to-reject"); err != nil {
		t.Fatalf("unable to reject: %v", err)
	}
	assertResult(t, rejected, ResolutionReject)
}

// TestPaymentPollsStore asserts that payment evaluations poll their record.
func TestPaymentPollsStore(t *testing.T) {
	c, cleanup := newTestContext(t, func(cfg *Config) {
		labelMode(cfg)
		cfg.PaymentPollInterval = 10 * time.Millisecond
	})
	defer cleanup()

	c.store.put("polled", "Hodl")
	results := c.handlePayment(context.Background(), paymentEvent("polled"))
	c.waitLookup(t, "polled")
	c.waitLookup(t, "polled")

	c.store.mtx.Lock()
	c.store.records["polled"][0].Value = "REJECT"
	c.store.mtx.Unlock()

	assertResult(t, results, ResolutionReject)
}

// TestPaymentInconsistentStore asserts that unknown states are hard errors.
func TestPaymentInconsistentStore(t *testing.T) {
	c, cleanup := newTestContext(t, labelMode)
	defer cleanup()

	c.store.put("maybe", "maybe")
	_, err := c.registry.HandleInvoicePayment(
		context.Background(), paymentEvent("maybe"),
	)
	if err == nil {
		t.Fatalf("expected error for unknown state")
	}

	c.store.put("dup", "Hodl")
	c.store.put("dup", "Hodl")
	_, err = c.registry.HandleInvoicePayment(
		context.Background(), paymentEvent("dup"),
	)
	assertErr(t, err, ErrInvariant)
}
