package holdstore

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"testing"

	"github.com/decred/hodlvoice/hodlstate"
	bolt "go.etcd.io/bbolt"
)

const testHash = "3b5a3e4b8d7c5e2f1a0b9c8d7e6f5a4b3c2d1e0f9a8b7c6d5e4f3a2b1c0d9e8f"

type storeFactory func(t *testing.T) (Store, func())

func tempDir(t *testing.T) (string, func()) {
	t.Helper()

	dir, err := ioutil.TempDir("", "holdstore")
	if err != nil {
		t.Fatalf("unable to create temp dir: %v", err)
	}
	return dir, func() { os.RemoveAll(dir) }
}

func newBoltTestStore(t *testing.T) (Store, func()) {
	dir, cleanup := tempDir(t)
	store, err := OpenBoltStore(dir)
	if err != nil {
		cleanup()
		t.Fatalf("unable to open bolt store: %v", err)
	}
	return store, func() {
		store.Close()
		cleanup()
	}
}

func newSQLiteTestStore(t *testing.T) (Store, func()) {
	dir, cleanup := tempDir(t)
	store, err := OpenSQLiteStore(dir)
	if err != nil {
		cleanup()
		t.Fatalf("unable to open sqlite store: %v", err)
	}
	return store, func() {
		store.Close()
		cleanup()
	}
}

func newDatastoreTestStore(t *testing.T) (Store, func()) {
	return NewDatastoreStore(newMockDatastore()), func() {}
}

var storeFactories = []struct {
	name string
	new  storeFactory
}{
	{"bolt", newBoltTestStore},
	{"sqlite", newSQLiteTestStore},
	{"datastore", newDatastoreTestStore},
}

func assertState(t *testing.T, store Store, id string, want hodlstate.State,
	wantGen uint64) {

	t.Helper()

	records, err := store.Lookup(context.Background(), id)
	if err != nil {
		t.Fatalf("unable to look up %s: %v", id, err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	state, err := hodlstate.Parse(records[0].Value)
	if err != nil {
		t.Fatalf("unable to parse stored state: %v", err)
	}
	if state != want {
		t.Fatalf("expected state %v, got %v", want, state)
	}
	if records[0].Value != want.String() {
		t.Fatalf("expected canonical value %q, got %q", want,
			records[0].Value)
	}
	if records[0].Generation != wantGen {
		t.Fatalf("expected generation %d, got %d", wantGen,
			records[0].Generation)
	}
	if records[0].ID != id {
		t.Fatalf("expected id %s, got %s", id, records[0].ID)
	}
}

// TestCreateOnly asserts that a record can be registered once only.
func TestCreateOnly(t *testing.T) {
	for _, f := range storeFactories {
		f := f
		t.Run(f.name, func(t *testing.T) {
			store, cleanup := f.new(t)
			defer cleanup()
			ctx := context.Background()

			records, err := store.Lookup(ctx, testHash)
			if err != nil {
				t.Fatalf("unable to look up: %v", err)
			}
			if len(records) != 0 {
				t.Fatalf("expected no records, got %d",
					len(records))
			}

			if err := store.Create(ctx, testHash, hodlstate.Hodl); err != nil {
				t.Fatalf("unable to create: %v", err)
			}
			assertState(t, store, testHash, hodlstate.Hodl, 0)

			err = store.Create(ctx, testHash, hodlstate.Hodl)
			if !errors.Is(err, ErrRecordExists) {
				t.Fatalf("expected ErrRecordExists, got %v", err)
			}
			assertState(t, store, testHash, hodlstate.Hodl, 0)
		})
	}
}

// TestReplaceOnly asserts that only registered records can be resolved.
func TestReplaceOnly(t *testing.T) {
	for _, f := range storeFactories {
		f := f
		t.Run(f.name, func(t *testing.T) {
			store, cleanup := f.new(t)
			defer cleanup()
			ctx := context.Background()

			err := store.Replace(ctx, "label-1", hodlstate.Accept)
			if !errors.Is(err, ErrRecordNotFound) {
				t.Fatalf("expected ErrRecordNotFound, got %v", err)
			}
			records, err := store.Lookup(ctx, "label-1")
			if err != nil {
				t.Fatalf("unable to look up: %v", err)
			}
			if len(records) != 0 {
				t.Fatal("failed replace must not create a record")
			}

			if err := store.Create(ctx, "label-1", hodlstate.Hodl); err != nil {
				t.Fatalf("unable to create: %v", err)
			}
			if err := store.Replace(ctx, "label-1", hodlstate.Accept); err != nil {
				t.Fatalf("unable to replace: %v", err)
			}
			assertState(t, store, "label-1", hodlstate.Accept, 1)

			// Replacing a terminal record is not prevented here.
			if err := store.Replace(ctx, "label-1", hodlstate.Reject); err != nil {
				t.Fatalf("unable to replace: %v", err)
			}
			assertState(t, store, "label-1", hodlstate.Reject, 2)
		})
	}
}

// TestReplaceIf asserts the generation check of conditional writes.
func TestReplaceIf(t *testing.T) {
	for _, f := range storeFactories {
		f := f
		t.Run(f.name, func(t *testing.T) {
			store, cleanup := f.new(t)
			defer cleanup()
			ctx := context.Background()

			err := store.ReplaceIf(ctx, testHash, 0, hodlstate.Accept)
			if !errors.Is(err, ErrRecordNotFound) {
				t.Fatalf("expected ErrRecordNotFound, got %v", err)
			}

			if err := store.Create(ctx, testHash, hodlstate.Hodl); err != nil {
				t.Fatalf("unable to create: %v", err)
			}
			if err := store.ReplaceIf(ctx, testHash, 0, hodlstate.Reject); err != nil {
				t.Fatalf("unable to replace: %v", err)
			}
			assertState(t, store, testHash, hodlstate.Reject, 1)

			err = store.ReplaceIf(ctx, testHash, 0, hodlstate.Accept)
			if !errors.Is(err, ErrGenerationMismatch) {
				t.Fatalf("expected ErrGenerationMismatch, got %v",
					err)
			}
			assertState(t, store, testHash, hodlstate.Reject, 1)
		})
	}
}

// TestBoltStorePersists asserts that records survive reopening the
// database.
func TestBoltStorePersists(t *testing.T) {
	dir, cleanup := tempDir(t)
	defer cleanup()
	ctx := context.Background()

	store, err := OpenBoltStore(dir)
	if err != nil {
		t.Fatalf("unable to open store: %v", err)
	}
	if err := store.Create(ctx, testHash, hodlstate.Hodl); err != nil {
		t.Fatalf("unable to create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("unable to close: %v", err)
	}

	store, err = OpenBoltStore(dir)
	if err != nil {
		t.Fatalf("unable to reopen store: %v", err)
	}
	defer store.Close()

	assertState(t, store, testHash, hodlstate.Hodl, 0)
}

// TestBoltStoreCorruptRecord asserts that a value shorter than its
// generation header is reported as corrupt rather than as a lookup failure.
func TestBoltStoreCorruptRecord(t *testing.T) {
	dir, cleanup := tempDir(t)
	defer cleanup()

	store, err := OpenBoltStore(dir)
	if err != nil {
		t.Fatalf("unable to open store: %v", err)
	}
	defer store.Close()

	err = store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordBucket).Put([]byte(testHash),
			[]byte("Hod"))
	})
	if err != nil {
		t.Fatalf("unable to write raw value: %v", err)
	}

	_, err = store.Lookup(context.Background(), testHash)
	if !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}
