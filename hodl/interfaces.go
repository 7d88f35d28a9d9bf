package hodl

import (
	"context"
	"errors"
)

// ErrInvoiceNotFound is returned by an InvoiceService when no invoice
// matches the requested payment hash.
var ErrInvoiceNotFound = errors.New("invoice not found")

// InvoiceRequest holds the parameters of a new invoice, named as the host's
// invoice command expects them.
type InvoiceRequest struct {
	AmountMsat            Amount                 `json:"amount_msat"`
	Label                 string                 `json:"label"`
	Description           string                 `json:"description"`
	CLTV                  uint32                 `json:"cltv"`
	Expiry                *uint64                `json:"expiry,omitempty"`
	Fallbacks             []string               `json:"fallbacks,omitempty"`
	Preimage              *string                `json:"preimage,omitempty"`
	ExposePrivateChannels *ExposePrivateChannels `json:"exposeprivatechannels,omitempty"`
	DescHashOnly          *bool                  `json:"deschashonly,omitempty"`
}

// Invoice is a freshly minted invoice.
type Invoice struct {
	Label         string `json:"label"`
	PaymentHash   string `json:"payment_hash"`
	Bolt11        string `json:"bolt11"`
	PaymentSecret string `json:"payment_secret,omitempty"`
	ExpiresAt     int64  `json:"expires_at"`
}

// InvoiceMeta is the subset of an existing invoice needed to decide how long
// its payment may be held.
type InvoiceMeta struct {
	Label       string
	PaymentHash string
	Status      string

	// ExpiresAt is the absolute expiry of the invoice in seconds since
	// the unix epoch.
	ExpiresAt int64
}

// InvoiceService is the part of the host used to mint and inspect invoices.
type InvoiceService interface {
	// CreateInvoice mints a new invoice.
	CreateInvoice(ctx context.Context, req *InvoiceRequest) (*Invoice, error)

	// LookupInvoice returns the invoice with the given payment hash or
	// ErrInvoiceNotFound.
	LookupInvoice(ctx context.Context, paymentHash string) (*InvoiceMeta, error)

	// DeleteUnpaidInvoice removes an invoice that has not been paid.
	DeleteUnpaidInvoice(ctx context.Context, label string) error
}
