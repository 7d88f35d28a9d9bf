package hodl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/decred/hodlvoice/chainstate"
	"github.com/decred/hodlvoice/hodlstate"
	"github.com/decred/hodlvoice/holdstore"
)

var testTimeout = 5 * time.Second

// mockStore is an in-memory holdstore.Store that can be made to return
// duplicate records and lookup errors.
type mockStore struct {
	mtx       sync.Mutex
	records   map[string][]*holdstore.Record
	lookupErr error
	lookups   chan string
}

func newMockStore() *mockStore {
	return &mockStore{
		records: make(map[string][]*holdstore.Record),
		lookups: make(chan string, 1000),
	}
}

func (m *mockStore) put(id, value string) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.records[id] = append(m.records[id], &holdstore.Record{
		ID:         id,
		Value:      value,
		Generation: 1,
	})
}

func (m *mockStore) value(id string) (string, bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	recs := m.records[id]
	if len(recs) == 0 {
		return "", false
	}
	return recs[0].Value, true
}

func (m *mockStore) Lookup(_ context.Context, id string) ([]*holdstore.Record, error) {
	select {
	case m.lookups <- id:
	default:
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.lookupErr != nil {
		return nil, m.lookupErr
	}

	var recs []*holdstore.Record
	for _, r := range m.records[id] {
		c := *r
		recs = append(recs, &c)
	}
	return recs, nil
}

func (m *mockStore) Create(_ context.Context, id string, state hodlstate.State) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if len(m.records[id]) > 0 {
		return holdstore.ErrRecordExists
	}
	m.records[id] = []*holdstore.Record{{
		ID:         id,
		Value:      state.String(),
		Generation: 0,
	}}
	return nil
}

func (m *mockStore) Replace(_ context.Context, id string, state hodlstate.State) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	recs := m.records[id]
	if len(recs) == 0 {
		return holdstore.ErrRecordNotFound
	}
	recs[0].Value = state.String()
	recs[0].Generation++
	return nil
}

func (m *mockStore) ReplaceIf(_ context.Context, id string, generation uint64,
	state hodlstate.State) error {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	recs := m.records[id]
	if len(recs) == 0 {
		return holdstore.ErrRecordNotFound
	}
	if recs[0].Generation != generation {
		return holdstore.ErrGenerationMismatch
	}
	recs[0].Value = state.String()
	recs[0].Generation++
	return nil
}

func (m *mockStore) Close() error {
	return nil
}

// mockInvoices is an in-memory InvoiceService. Payment hashes are derived
// from labels.
type mockInvoices struct {
	mtx      sync.Mutex
	invoices map[string]*InvoiceMeta
	requests []*InvoiceRequest
	deleted  []string
	lookups  int
	expiry   int64
}

func newMockInvoices() *mockInvoices {
	return &mockInvoices{
		invoices: make(map[string]*InvoiceMeta),
		expiry:   time.Now().Add(time.Hour).Unix(),
	}
}

func testPaymentHash(label string) string {
	h := sha256.Sum256([]byte(label))
	return hex.EncodeToString(h[:])
}

func (m *mockInvoices) add(label string, expiresAt int64) string {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	hash := testPaymentHash(label)
	m.invoices[hash] = &InvoiceMeta{
		Label:       label,
		PaymentHash: hash,
		Status:      "unpaid",
		ExpiresAt:   expiresAt,
	}
	return hash
}

func (m *mockInvoices) CreateInvoice(_ context.Context,
	req *InvoiceRequest) (*Invoice, error) {

	m.mtx.Lock()
	m.requests = append(m.requests, req)
	expiry := m.expiry
	m.mtx.Unlock()

	hash := m.add(req.Label, expiry)
	return &Invoice{
		Label:       req.Label,
		PaymentHash: hash,
		Bolt11:      "lnbcrt1" + req.Label,
		ExpiresAt:   expiry,
	}, nil
}

func (m *mockInvoices) LookupInvoice(_ context.Context,
	paymentHash string) (*InvoiceMeta, error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.lookups++
	inv, ok := m.invoices[paymentHash]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	c := *inv
	return &c, nil
}

func (m *mockInvoices) DeleteUnpaidInvoice(_ context.Context, label string) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.deleted = append(m.deleted, label)
	delete(m.invoices, testPaymentHash(label))
	return nil
}

type testContext struct {
	registry *Registry
	store    *mockStore
	invoices *mockInvoices
	chain    *chainstate.Tracker
}

func newTestContext(t *testing.T, modify func(*Config)) (*testContext, func()) {
	t.Helper()

	chain := chainstate.NewTracker(50)
	chain.SetHeight(100)

	ctx := &testContext{
		store:    newMockStore(),
		invoices: newMockInvoices(),
		chain:    chain,
	}
	cfg := &Config{
		Store:               ctx.store,
		Invoices:            ctx.invoices,
		Chain:               chain,
		KeyMode:             KeyPaymentHash,
		HTLCPollInterval:    time.Hour,
		PaymentPollInterval: time.Hour,
	}
	if modify != nil {
		modify(cfg)
	}
	ctx.registry = NewRegistry(cfg)

	return ctx, ctx.registry.Stop
}

type evalResult struct {
	res Resolution
	err error
}

// waitLookup blocks until the store was consulted for id.
func (c *testContext) waitLookup(t *testing.T, id string) {
	t.Helper()

	for {
		select {
		case got := <-c.store.lookups:
			if got == id {
				return
			}
		case <-time.After(testTimeout):
			t.Fatalf("no lookup of %s", id)
		}
	}
}

func assertNoResult(t *testing.T, results <-chan evalResult) {
	t.Helper()

	select {
	case r := <-results:
		t.Fatalf("expected evaluation to be pending, got %v (%v)",
			r.res, r.err)
	case <-time.After(50 * time.Millisecond):
	}
}

func assertResult(t *testing.T, results <-chan evalResult, want Resolution) {
	t.Helper()

	select {
	case r := <-results:
		if r.err != nil {
			t.Fatalf("unexpected evaluation error: %v", r.err)
		}
		if r.res != want {
			t.Fatalf("expected %v, got %v", want, r.res)
		}
	case <-time.After(testTimeout):
		t.Fatalf("evaluation did not resolve")
	}
}

func assertErr(t *testing.T, err, want error) {
	t.Helper()

	if !errors.Is(err, want) {
		t.Fatalf("expected error %v, got %v", want, err)
	}
}
