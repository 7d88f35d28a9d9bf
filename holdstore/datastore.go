package holdstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/hodlvoice/hodlstate"
	"github.com/decred/hodlvoice/lnplugin"
)

// Error codes returned by the host's datastore command.
const (
	codeDatastoreExists        = 1202
	codeDatastoreDoesNotExist  = 1203
	codeDatastoreWrongGenCount = 1204
)

// DatastoreMode selects the write semantics of a datastore request.
type DatastoreMode string

const (
	// ModeMustCreate fails if the key already exists.
	ModeMustCreate DatastoreMode = "must-create"

	// ModeMustReplace fails if the key does not exist.
	ModeMustReplace DatastoreMode = "must-replace"
)

// DatastoreEntry is an entry returned by listdatastore.
type DatastoreEntry struct {
	Key        []string `json:"key"`
	Generation uint64   `json:"generation"`
	Hex        string   `json:"hex,omitempty"`
	String     *string  `json:"string,omitempty"`
}

// DatastoreRequest is the parameter object of the datastore command.
type DatastoreRequest struct {
	Key        []string      `json:"key"`
	String     string        `json:"string"`
	Mode       DatastoreMode `json:"mode"`
	Generation *uint64       `json:"generation,omitempty"`
}

// DatastoreClient is the part of the host RPC used by DatastoreStore.
type DatastoreClient interface {
	// ListDatastore returns the entries at or below key.
	ListDatastore(ctx context.Context, key []string) ([]DatastoreEntry, error)

	// Datastore writes an entry.
	Datastore(ctx context.Context, req *DatastoreRequest) error
}

// DatastoreStore keeps decision records in the host's own datastore, which
// makes them survive plugin restarts and visible to other tools.
type DatastoreStore struct {
	client DatastoreClient
}

// A compile time check to ensure DatastoreStore implements the Store
// interface.
var _ Store = (*DatastoreStore)(nil)

// NewDatastoreStore returns a store backed by the host's datastore.
func NewDatastoreStore(client DatastoreClient) *DatastoreStore {
	return &DatastoreStore{client: client}
}

func datastoreKey(id string) []string {
	return []string{Namespace, id}
}

// Lookup returns every entry listed under the record key. Entries nested
// below the key are returned as well so that the caller can detect them as
// inconsistent.
func (s *DatastoreStore) Lookup(ctx context.Context, id string) ([]*Record, error) {
	entries, err := s.client.ListDatastore(ctx, datastoreKey(id))
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(entries))
	for _, e := range entries {
		r := &Record{
			ID:         id,
			Generation: e.Generation,
		}
		if len(e.Key) > 0 {
			r.ID = e.Key[len(e.Key)-1]
		}

		switch {
		case e.String != nil:
			r.Value = *e.String

		case e.Hex != "":
			b, err := hex.DecodeString(e.Hex)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid hex value "+
					"for %v: %v", ErrCorruptRecord, e.Key,
					err)
			}
			r.Value = string(b)
		}

		records = append(records, r)
	}

	return records, nil
}

// Create implements Store.
func (s *DatastoreStore) Create(ctx context.Context, id string,
	state hodlstate.State) error {

	return s.write(ctx, &DatastoreRequest{
		Key:    datastoreKey(id),
		String: state.String(),
		Mode:   ModeMustCreate,
	})
}

// Replace implements Store.
func (s *DatastoreStore) Replace(ctx context.Context, id string,
	state hodlstate.State) error {

	return s.write(ctx, &DatastoreRequest{
		Key:    datastoreKey(id),
		String: state.String(),
		Mode:   ModeMustReplace,
	})
}

// ReplaceIf implements Store.
func (s *DatastoreStore) ReplaceIf(ctx context.Context, id string,
	generation uint64, state hodlstate.State) error {

	return s.write(ctx, &DatastoreRequest{
		Key:        datastoreKey(id),
		String:     state.String(),
		Mode:       ModeMustReplace,
		Generation: &generation,
	})
}

// Close implements Store. The host connection is not owned by the store.
func (s *DatastoreStore) Close() error {
	return nil
}

func (s *DatastoreStore) write(ctx context.Context, req *DatastoreRequest) error {
	err := s.client.Datastore(ctx, req)
	if err == nil {
		log.Debugf("Stored %s for %v (%s)", req.String, req.Key, req.Mode)
		return nil
	}

	var rpcErr *lnplugin.RPCError
	if !errors.As(err, &rpcErr) {
		return err
	}
	switch rpcErr.Code {
	case codeDatastoreExists:
		return fmt.Errorf("%w: %v", ErrRecordExists, req.Key)
	case codeDatastoreDoesNotExist:
		return fmt.Errorf("%w: %v", ErrRecordNotFound, req.Key)
	case codeDatastoreWrongGenCount:
		return fmt.Errorf("%w: %v", ErrGenerationMismatch, req.Key)
	default:
		return err
	}
}
