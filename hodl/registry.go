package hodl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/hodlvoice/holdstore"
	"github.com/decred/hodlvoice/monitoring"
)

var (
	// ErrInvariant is returned when the decision store holds data that a
	// consistent store cannot hold, such as two records for one key or a
	// record that cannot be decoded.
	ErrInvariant = errors.New("decision store invariant violated")

	// ErrMalformedEvent is returned when a hook event can be attributed
	// to a payment but lacks data needed to evaluate it.
	ErrMalformedEvent = errors.New("malformed hook event")

	// ErrAlreadyResolved is returned by strict resolves of a record that
	// was already accepted or rejected.
	ErrAlreadyResolved = errors.New("hold already resolved")

	// ErrShuttingDown is returned by pending evaluations when the
	// registry is stopped.
	ErrShuttingDown = errors.New("registry shutting down")
)

// errLookupFailed marks a store lookup failure so hook handlers can apply
// the configured fail-open policy.
var errLookupFailed = errors.New("decision store lookup failed")

// Registry evaluates the hooks of managed payments against their decision
// records and serves the operator commands that write those records.
type Registry struct {
	cfg      Config
	notifier *resolutionNotifier

	quit     chan struct{}
	stopOnce sync.Once
}

// NewRegistry returns a registry using cfg. Zero tunables are replaced by
// their defaults.
func NewRegistry(cfg *Config) *Registry {
	c := *cfg
	if c.HoldSafetyBlocks == 0 {
		c.HoldSafetyBlocks = DefaultHoldSafetyBlocks
	}
	if c.HTLCPollInterval == 0 {
		c.HTLCPollInterval = DefaultHTLCPollInterval
	}
	if c.PaymentPollInterval == 0 {
		c.PaymentPollInterval = DefaultPaymentPollInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	return &Registry{
		cfg:      c,
		notifier: newResolutionNotifier(),
		quit:     make(chan struct{}),
	}
}

// Stop releases every pending evaluation with ErrShuttingDown.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		log.Info("Hold registry shutting down")
		close(r.quit)
	})
}

// KeyMode returns the key mode of the registry.
func (r *Registry) KeyMode() KeyMode {
	return r.cfg.KeyMode
}

// lookup returns the single record stored under id, or nil if there is
// none.
func (r *Registry) lookup(ctx context.Context, id string) (*holdstore.Record, error) {
	if r.cfg.LookupLimiter != nil {
		if err := r.cfg.LookupLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	records, err := r.cfg.Store.Lookup(ctx, id)
	switch {
	case errors.Is(err, holdstore.ErrCorruptRecord):
		r.cfg.Metrics.StoreLookup("corrupt")
		log.Errorf("Unreadable decision record for %s: %v", id, err)
		return nil, fmt.Errorf("%w: %v", ErrInvariant, err)

	case err != nil:
		r.cfg.Metrics.StoreLookup("error")
		return nil, fmt.Errorf("%w: %v", errLookupFailed, err)
	}

	switch len(records) {
	case 0:
		r.cfg.Metrics.StoreLookup("missing")
		return nil, nil

	case 1:
		r.cfg.Metrics.StoreLookup("found")
		return records[0], nil

	default:
		r.cfg.Metrics.StoreLookup("duplicate")
		log.Errorf("Found %d decision records for %s: %v",
			len(records), id, newLogClosure(func() string {
				return spew.Sdump(records)
			}))
		return nil, fmt.Errorf("%w: %d records for %s", ErrInvariant,
			len(records), id)
	}
}

// wait blocks until the poll interval elapses or wake fires. It returns an
// error if ctx is cancelled or the registry is stopped first.
func (r *Registry) wait(ctx context.Context, wake <-chan struct{},
	interval time.Duration) error {

	timer := time.NewTimer(interval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.quit:
		return ErrShuttingDown
	}
}

// timelockTooClose reports whether fewer than safety blocks would remain
// between the chain tip and the point where the upstream htlc must be
// resolved on chain. Arithmetic is signed so that an expiry below the delta
// counts as too close.
func timelockTooClose(cltvExpiry, cltvDelta, height, safety uint32) bool {
	return int64(cltvExpiry)-int64(cltvDelta) <=
		int64(height)+int64(safety)
}

// outcome maps a resolution to its metrics label.
func outcome(res Resolution) string {
	switch res {
	case ResolutionFail:
		return monitoring.OutcomeFail
	case ResolutionReject:
		return monitoring.OutcomeReject
	default:
		return monitoring.OutcomeContinue
	}
}
