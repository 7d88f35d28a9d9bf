// Package clnrpc provides typed bindings for the host node RPC commands used
// to mint invoices, inspect them and persist decision records.
package clnrpc

import (
	"context"
	"fmt"
	"strings"

	"github.com/decred/hodlvoice/hodl"
	"github.com/decred/hodlvoice/holdstore"
)

// Caller performs a single host RPC call.
type Caller interface {
	Call(ctx context.Context, method string, params, result interface{}) error
}

// Client wraps a Caller with the host commands used by the plugin.
type Client struct {
	caller Caller
}

// Compile time checks to ensure Client can serve as the invoice service of
// the hold registry and as the backend of the datastore store.
var (
	_ hodl.InvoiceService       = (*Client)(nil)
	_ holdstore.DatastoreClient = (*Client)(nil)
)

// New returns a client issuing calls through caller.
func New(caller Caller) *Client {
	return &Client{caller: caller}
}

// NodeInfo is the subset of the getinfo result used by the plugin.
type NodeInfo struct {
	ID          string `json:"id"`
	Alias       string `json:"alias"`
	Network     string `json:"network"`
	Version     string `json:"version"`
	BlockHeight uint32 `json:"blockheight"`
}

// GetInfo returns information about the host node.
func (c *Client) GetInfo(ctx context.Context) (*NodeInfo, error) {
	var info NodeInfo
	if err := c.caller.Call(ctx, "getinfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

type invoiceResult struct {
	PaymentHash   string `json:"payment_hash"`
	Bolt11        string `json:"bolt11"`
	PaymentSecret string `json:"payment_secret"`
	ExpiresAt     int64  `json:"expires_at"`
}

// CreateInvoice mints an invoice with the host's invoice command.
func (c *Client) CreateInvoice(ctx context.Context,
	req *hodl.InvoiceRequest) (*hodl.Invoice, error) {

	var res invoiceResult
	if err := c.caller.Call(ctx, "invoice", req, &res); err != nil {
		return nil, err
	}
	if res.PaymentHash == "" {
		return nil, fmt.Errorf("invoice %q returned without payment "+
			"hash", req.Label)
	}

	log.Debugf("Created invoice %q with payment hash %s", req.Label,
		res.PaymentHash)

	return &hodl.Invoice{
		Label:         req.Label,
		PaymentHash:   res.PaymentHash,
		Bolt11:        res.Bolt11,
		PaymentSecret: res.PaymentSecret,
		ExpiresAt:     res.ExpiresAt,
	}, nil
}

type listInvoicesResult struct {
	Invoices []struct {
		Label       string `json:"label"`
		PaymentHash string `json:"payment_hash"`
		Status      string `json:"status"`
		ExpiresAt   int64  `json:"expires_at"`
	} `json:"invoices"`
}

// LookupInvoice returns the invoice with the given payment hash, or
// hodl.ErrInvoiceNotFound.
func (c *Client) LookupInvoice(ctx context.Context,
	paymentHash string) (*hodl.InvoiceMeta, error) {

	params := map[string]string{"payment_hash": paymentHash}

	var res listInvoicesResult
	if err := c.caller.Call(ctx, "listinvoices", params, &res); err != nil {
		return nil, err
	}

	for _, inv := range res.Invoices {
		if !strings.EqualFold(inv.PaymentHash, paymentHash) {
			continue
		}
		return &hodl.InvoiceMeta{
			Label:       inv.Label,
			PaymentHash: inv.PaymentHash,
			Status:      inv.Status,
			ExpiresAt:   inv.ExpiresAt,
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", hodl.ErrInvoiceNotFound, paymentHash)
}

// DeleteUnpaidInvoice deletes the invoice with the given label as long as
// it has not been paid.
func (c *Client) DeleteUnpaidInvoice(ctx context.Context, label string) error {
	params := map[string]string{
		"label":  label,
		"status": "unpaid",
	}
	return c.caller.Call(ctx, "delinvoice", params, nil)
}

type listDatastoreResult struct {
	Datastore []holdstore.DatastoreEntry `json:"datastore"`
}

// ListDatastore returns the datastore entries at or below key.
func (c *Client) ListDatastore(ctx context.Context,
	key []string) ([]holdstore.DatastoreEntry, error) {

	params := map[string][]string{"key": key}

	var res listDatastoreResult
	if err := c.caller.Call(ctx, "listdatastore", params, &res); err != nil {
		return nil, err
	}
	return res.Datastore, nil
}

// Datastore writes a datastore entry.
func (c *Client) Datastore(ctx context.Context,
	req *holdstore.DatastoreRequest) error {

	return c.caller.Call(ctx, "datastore", req, nil)
}
