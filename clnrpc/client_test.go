package clnrpc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/decred/hodlvoice/hodl"
	"github.com/decred/hodlvoice/hodlstate"
	"github.com/decred/hodlvoice/holdstore"
	"github.com/decred/hodlvoice/lnplugin"
)

type call struct {
	method string
	params string
}

// mockCaller records calls and answers them from a table of canned results
// keyed by method.
type mockCaller struct {
	calls   []call
	results map[string]string
	errs    map[string]error
}

func newMockCaller() *mockCaller {
	return &mockCaller{
		results: make(map[string]string),
		errs:    make(map[string]error),
	}
}

func (m *mockCaller) Call(_ context.Context, method string, params,
	result interface{}) error {

	b, err := json.Marshal(params)
	if err != nil {
		return err
	}
	m.calls = append(m.calls, call{method, string(b)})

	if err := m.errs[method]; err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal([]byte(m.results[method]), result)
}

func (m *mockCaller) lastCall(t *testing.T) call {
	t.Helper()

	if len(m.calls) == 0 {
		t.Fatalf("no calls made")
	}
	return m.calls[len(m.calls)-1]
}

// TestCreateInvoice checks the encoding of invoice requests.
func TestCreateInvoice(t *testing.T) {
	caller := newMockCaller()
	caller.results["invoice"] = `{"payment_hash":"ab","bolt11":"lnbc1",` +
		`"payment_secret":"cd","expires_at":1700000000}`
	client := New(caller)

	expiry := uint64(3600)
	inv, err := client.CreateInvoice(context.Background(),
		&hodl.InvoiceRequest{
			AmountMsat:  hodl.AmountMsat(1000),
			Label:       "l",
			Description: "d",
			CLTV:        234,
			Expiry:      &expiry,
		})
	if err != nil {
		t.Fatalf("unable to create invoice: %v", err)
	}
	if inv.Label != "l" || inv.PaymentHash != "ab" ||
		inv.ExpiresAt != 1700000000 {

		t.Fatalf("unexpected invoice %+v", inv)
	}

	c := caller.lastCall(t)
	want := `{"amount_msat":1000,"label":"l","description":"d",` +
		`"cltv":234,"expiry":3600}`
	if c.method != "invoice" || c.params != want {
		t.Fatalf("unexpected call %s %s", c.method, c.params)
	}
}

// TestLookupInvoice checks invoice lookups by payment hash.
func TestLookupInvoice(t *testing.T) {
	caller := newMockCaller()
	caller.results["listinvoices"] = `{"invoices":[{"label":"l",` +
		`"payment_hash":"ab","status":"unpaid","expires_at":5}]}`
	client := New(caller)

	inv, err := client.LookupInvoice(context.Background(), "ab")
	if err != nil {
		t.Fatalf("unable to look up invoice: %v", err)
	}
	if inv.Label != "l" || inv.ExpiresAt != 5 {
		t.Fatalf("unexpected invoice %+v", inv)
	}
	if c := caller.lastCall(t); c.params != `{"payment_hash":"ab"}` {
		t.Fatalf("unexpected params %s", c.params)
	}

	caller.results["listinvoices"] = `{"invoices":[]}`
	_, err = client.LookupInvoice(context.Background(), "ab")
	if !errors.Is(err, hodl.ErrInvoiceNotFound) {
		t.Fatalf("expected ErrInvoiceNotFound, got %v", err)
	}
}

// TestDeleteUnpaidInvoice checks that only unpaid invoices are deleted.
func TestDeleteUnpaidInvoice(t *testing.T) {
	caller := newMockCaller()
	client := New(caller)

	if err := client.DeleteUnpaidInvoice(context.Background(), "l"); err != nil {
		t.Fatalf("unable to delete invoice: %v", err)
	}
	c := caller.lastCall(t)
	if c.method != "delinvoice" ||
		c.params != `{"label":"l","status":"unpaid"}` {

		t.Fatalf("unexpected call %s %s", c.method, c.params)
	}
}

// TestGetInfo checks the decoding of getinfo.
func TestGetInfo(t *testing.T) {
	caller := newMockCaller()
	caller.results["getinfo"] = `{"id":"02ab","blockheight":812345,` +
		`"network":"regtest"}`

	info, err := New(caller).GetInfo(context.Background())
	if err != nil {
		t.Fatalf("unable to get info: %v", err)
	}
	if info.BlockHeight != 812345 || info.Network != "regtest" {
		t.Fatalf("unexpected info %+v", info)
	}
}

// TestDatastoreErrors asserts that host datastore errors surface as the
// store's sentinel errors.
func TestDatastoreErrors(t *testing.T) {
	caller := newMockCaller()
	store := holdstore.NewDatastoreStore(New(caller))
	ctx := context.Background()

	caller.errs["datastore"] = &lnplugin.RPCError{
		Code:    1202,
		Message: "Key already exists",
	}
	err := store.Create(ctx, "k", hodlstate.Hodl)
	if !errors.Is(err, holdstore.ErrRecordExists) {
		t.Fatalf("expected ErrRecordExists, got %v", err)
	}
	c := caller.lastCall(t)
	if !strings.Contains(c.params, `"mode":"must-create"`) ||
		!strings.Contains(c.params, `"key":["hodlvoice","k"]`) {

		t.Fatalf("unexpected datastore params %s", c.params)
	}

	caller.errs["datastore"] = &lnplugin.RPCError{
		Code:    1203,
		Message: "Key does not exist",
	}
	err = store.Replace(ctx, "k", hodlstate.Accept)
	if !errors.Is(err, holdstore.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}

	caller.results["listdatastore"] = `{"datastore":[{"key":` +
		`["hodlvoice","k"],"generation":3,"string":"Hodl"}]}`
	records, err := store.Lookup(ctx, "k")
	if err != nil {
		t.Fatalf("unable to look up: %v", err)
	}
	if len(records) != 1 || records[0].Value != "Hodl" ||
		records[0].Generation != 3 {

		t.Fatalf("unexpected records %v", records)
	}
}
