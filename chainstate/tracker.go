// Package chainstate tracks the chain tip as last announced by the host
// together with the operator configured cltv delta. Both values are read by
// every pending hook evaluation and written by a single notification path.
package chainstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrMalformedBlock is returned when a block notification lacks the
	// block object or its height.
	ErrMalformedBlock = errors.New("malformed block notification")
)

// Snapshot is a consistent copy of the tracked values.
type Snapshot struct {
	// Height is the last observed chain tip.
	Height uint32

	// CLTVDelta is the invoice level timelock margin configured by the
	// operator.
	CLTVDelta uint32
}

// Tracker holds the process wide block height and cltv delta. Readers copy
// the values out with Snapshot and must never hold on to the lock while
// blocking.
type Tracker struct {
	mtx       sync.Mutex
	height    uint32
	cltvDelta uint32
}

// NewTracker returns a tracker at height zero using the given cltv delta.
func NewTracker(cltvDelta uint32) *Tracker {
	return &Tracker{cltvDelta: cltvDelta}
}

// Snapshot returns a copy of the current values.
func (t *Tracker) Snapshot() Snapshot {
	t.mtx.Lock()
	s := Snapshot{Height: t.height, CLTVDelta: t.cltvDelta}
	t.mtx.Unlock()
	return s
}

// Height returns the last observed chain tip.
func (t *Tracker) Height() uint32 {
	return t.Snapshot().Height
}

// SetHeight replaces the tracked chain tip. Lower heights are accepted, since
// the host announces the new tip after a reorg, but are logged.
func (t *Tracker) SetHeight(height uint32) {
	if prev := t.setHeight(height); height < prev {
		log.Warnf("Chain tip moved backwards from %d to %d", prev,
			height)
		return
	}
	log.Tracef("New chain tip at height %d", height)
}

// setHeight stores the new tip and returns the previous one.
func (t *Tracker) setHeight(height uint32) uint32 {
	t.mtx.Lock()
	prev := t.height
	t.height = height
	t.mtx.Unlock()

	return prev
}

// SetCLTVDelta replaces the configured cltv delta. Evaluations already in
// flight keep the value they started with.
func (t *Tracker) SetCLTVDelta(delta uint32) {
	t.mtx.Lock()
	prev := t.cltvDelta
	t.cltvDelta = delta
	t.mtx.Unlock()

	if prev != delta {
		log.Infof("cltv delta changed from %d to %d", prev, delta)
	}
}

type blockInfo struct {
	Hash   string  `json:"hash"`
	Height *uint32 `json:"height"`
}

type blockNotification struct {
	BlockAdded *blockInfo `json:"block_added"`

	// Block is the field name used by older hosts.
	Block *blockInfo `json:"block"`
}

// ParseBlockAdded decodes the height carried by a block_added notification.
func ParseBlockAdded(params json.RawMessage) (uint32, error) {
	block, err := parseBlock(params)
	if err != nil {
		return 0, err
	}
	return *block.Height, nil
}

func parseBlock(params json.RawMessage) (*blockInfo, error) {
	var n blockNotification
	if err := json.Unmarshal(params, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlock, err)
	}

	block := n.BlockAdded
	if block == nil {
		block = n.Block
	}
	switch {
	case block == nil:
		return nil, fmt.Errorf("%w: could not read block notification",
			ErrMalformedBlock)

	case block.Height == nil:
		return nil, fmt.Errorf("%w: could not find height for block %s",
			ErrMalformedBlock, block.Hash)
	}

	return block, nil
}

// BlockAdded consumes a block_added notification and updates the tip. A
// malformed notification leaves the tracked height untouched.
func (t *Tracker) BlockAdded(params json.RawMessage) error {
	block, err := parseBlock(params)
	if err != nil {
		return err
	}

	height := *block.Height
	if prev := t.setHeight(height); height < prev {
		log.Warnf("Chain tip moved backwards from %d to %d (block %s)",
			prev, height, block.Hash)
		return nil
	}
	log.Tracef("New chain tip %s at height %d", block.Hash, height)
	return nil
}
