package holdstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/decred/hodlvoice/hodlstate"
	bolt "go.etcd.io/bbolt"
)

const (
	// BoltDBFilename is the file name of the bolt store inside its
	// directory.
	BoltDBFilename = "hodlvoice.db"

	dbFilePermission = 0600
)

var recordBucket = []byte(Namespace)

// BoltStore keeps decision records in a local bolt database. Every write runs
// in its own transaction, which gives create-only and replace-only semantics
// without further locking.
type BoltStore struct {
	db *bolt.DB
}

// A compile time check to ensure BoltStore implements the Store interface.
var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens, creating if needed, the bolt store in dir.
func OpenBoltStore(dir string) (*BoltStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, BoltDBFilename)
	db, err := bolt.Open(path, dbFilePermission, &bolt.Options{
		Timeout: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Infof("Opened bolt decision store at %s", path)

	return &BoltStore{db: db}, nil
}

// encodeRecord serializes a record value as its generation followed by the
// state text.
func encodeRecord(generation uint64, value string) []byte {
	b := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(b[:8], generation)
	copy(b[8:], value)
	return b
}

func decodeRecord(id string, b []byte) (*Record, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("%w: record %s too short: %d bytes",
			ErrCorruptRecord, id, len(b))
	}
	return &Record{
		ID:         id,
		Generation: binary.BigEndian.Uint64(b[:8]),
		Value:      string(b[8:]),
	}, nil
}

// Lookup implements Store.
func (s *BoltStore) Lookup(_ context.Context, id string) ([]*Record, error) {
	var records []*Record
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(recordBucket).Get([]byte(id))
		if v == nil {
			return nil
		}
		r, err := decodeRecord(id, v)
		if err != nil {
			return err
		}
		records = append(records, r)
		return nil
	})
	return records, err
}

// Create implements Store.
func (s *BoltStore) Create(_ context.Context, id string,
	state hodlstate.State) error {

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(recordBucket)
		if bucket.Get([]byte(id)) != nil {
			return fmt.Errorf("%w: %s", ErrRecordExists, id)
		}
		return bucket.Put([]byte(id), encodeRecord(0, state.String()))
	})
}

// Replace implements Store.
func (s *BoltStore) Replace(_ context.Context, id string,
	state hodlstate.State) error {

	return s.replace(id, nil, state)
}

// ReplaceIf implements Store.
func (s *BoltStore) ReplaceIf(_ context.Context, id string, generation uint64,
	state hodlstate.State) error {

	return s.replace(id, &generation, state)
}

func (s *BoltStore) replace(id string, generation *uint64,
	state hodlstate.State) error {

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(recordBucket)
		v := bucket.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		r, err := decodeRecord(id, v)
		if err != nil {
			return err
		}
		if generation != nil && *generation != r.Generation {
			return fmt.Errorf("%w: %s at %d, expected %d",
				ErrGenerationMismatch, id, r.Generation,
				*generation)
		}

		return bucket.Put(
			[]byte(id), encodeRecord(r.Generation+1, state.String()),
		)
	})
}

// Close implements Store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
