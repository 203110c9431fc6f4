package resolver

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// mappingKeyPrefix namespaces collection mapping records inside the
// badger keyspace: 0x01 | databaseID (big-endian int32) | collection.
const mappingKeyPrefix = 0x01

// Store persists collection-to-specifier mappings in BadgerDB and
// serves them through the Resolver interface.
//
// Keys are ordered by database then collection, so listing a single
// database is a prefix scan.
//
// Example:
//
//	store, err := resolver.OpenStore(resolver.StoreOptions{DataDir: dir})
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//	err = store.Set(ctx, 1, "articles", resolver.Custom("/data/glove.vec"))
type Store struct {
	db *badger.DB
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// DataDir is the badger directory. Ignored when InMemory is set.
	DataDir string

	// InMemory keeps mappings in RAM only. Useful for tests.
	InMemory bool

	// SyncWrites forces fsync on every update.
	SyncWrites bool
}

// OpenStore opens (creating if needed) the mapping store.
func OpenStore(opts StoreOptions) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir).
		WithLogger(nil).
		WithMemTableSize(8 << 20).
		WithValueLogFileSize(32 << 20).
		WithNumMemtables(2)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func mappingKey(databaseID int32, collection string) []byte {
	key := make([]byte, 0, 5+len(collection))
	key = append(key, mappingKeyPrefix)
	key = binary.BigEndian.AppendUint32(key, uint32(databaseID))
	return append(key, collection...)
}

// Set stores or replaces the specifier for a collection.
func (s *Store) Set(_ context.Context, databaseID int32, collection string, spec Specifier) error {
	if collection == "" {
		return errors.New("collection name must not be empty")
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	value, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(mappingKey(databaseID, collection), value)
	})
}

// Get returns the stored specifier and whether a mapping exists.
func (s *Store) Get(_ context.Context, databaseID int32, collection string) (Specifier, bool, error) {
	var spec Specifier
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(mappingKey(databaseID, collection))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &spec)
		})
	})
	if err != nil {
		return Specifier{}, false, err
	}
	return spec, found, nil
}

// Delete removes a mapping. Deleting an absent mapping is a no-op.
func (s *Store) Delete(_ context.Context, databaseID int32, collection string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(mappingKey(databaseID, collection))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// Mapping pairs a collection with its stored specifier.
type Mapping struct {
	Collection string    `json:"collection"`
	Spec       Specifier `json:"spec"`
}

// List returns all mappings for a database, ordered by collection name.
func (s *Store) List(_ context.Context, databaseID int32) ([]Mapping, error) {
	prefix := mappingKey(databaseID, "")
	var mappings []Mapping
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			collection := string(item.Key()[len(prefix):])
			var spec Specifier
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &spec)
			}); err != nil {
				return err
			}
			mappings = append(mappings, Mapping{Collection: collection, Spec: spec})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mappings, nil
}

// Resolve implements Resolver. Unmapped collections resolve to
// KindNone.
func (s *Store) Resolve(ctx context.Context, databaseID int32, collection string) (Specifier, error) {
	spec, found, err := s.Get(ctx, databaseID, collection)
	if err != nil {
		return Specifier{}, err
	}
	if !found {
		return None(), nil
	}
	return spec, nil
}
