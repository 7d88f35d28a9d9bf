package holdstore

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/decred/hodlvoice/lnplugin"
)

// mockDatastore mimics the host datastore, including its error codes.
type mockDatastore struct {
	mtx     sync.Mutex
	entries map[string]*DatastoreEntry
}

func newMockDatastore() *mockDatastore {
	return &mockDatastore{entries: make(map[string]*DatastoreEntry)}
}

func (m *mockDatastore) ListDatastore(_ context.Context,
	key []string) ([]DatastoreEntry, error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	prefix := strings.Join(key, "/")
	var entries []DatastoreEntry
	for k, e := range m.entries {
		if k == prefix || strings.HasPrefix(k, prefix+"/") {
			entries = append(entries, *e)
		}
	}
	return entries, nil
}

func (m *mockDatastore) Datastore(_ context.Context,
	req *DatastoreRequest) error {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	k := strings.Join(req.Key, "/")
	e, ok := m.entries[k]
	switch req.Mode {
	case ModeMustCreate:
		if ok {
			return &lnplugin.RPCError{
				Code:    codeDatastoreExists,
				Message: "Key already exists",
			}
		}
		s := req.String
		m.entries[k] = &DatastoreEntry{Key: req.Key, String: &s}

	case ModeMustReplace:
		if !ok {
			return &lnplugin.RPCError{
				Code:    codeDatastoreDoesNotExist,
				Message: "Key does not exist",
			}
		}
		if req.Generation != nil && *req.Generation != e.Generation {
			return &lnplugin.RPCError{
				Code:    codeDatastoreWrongGenCount,
				Message: "generation is different",
			}
		}
		s := req.String
		e.String = &s
		e.Generation++
	}
	return nil
}

// TestDatastoreLookupDuplicates asserts that entries nested below a record
// key and hex encoded values are surfaced so the caller can judge them.
func TestDatastoreLookupDuplicates(t *testing.T) {
	ds := newMockDatastore()
	store := NewDatastoreStore(ds)

	hodl := "Hodl"
	ds.entries[Namespace+"/"+testHash] = &DatastoreEntry{
		Key:    []string{Namespace, testHash},
		String: &hodl,
	}
	ds.entries[Namespace+"/"+testHash+"/extra"] = &DatastoreEntry{
		Key: []string{Namespace, testHash, "extra"},
		Hex: hex.EncodeToString([]byte("Accept")),
	}

	records, err := store.Lookup(context.Background(), testHash)
	if err != nil {
		t.Fatalf("unable to look up: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	values := map[string]string{}
	for _, r := range records {
		values[r.ID] = r.Value
	}
	if values[testHash] != "Hodl" || values["extra"] != "Accept" {
		t.Fatalf("unexpected records %v", values)
	}
}

// TestDatastoreCorruptRecord asserts that an entry with undecodable hex is
// reported as corrupt.
func TestDatastoreCorruptRecord(t *testing.T) {
	ds := newMockDatastore()
	store := NewDatastoreStore(ds)

	ds.entries[Namespace+"/"+testHash] = &DatastoreEntry{
		Key: []string{Namespace, testHash},
		Hex: "zz",
	}

	_, err := store.Lookup(context.Background(), testHash)
	if !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}
