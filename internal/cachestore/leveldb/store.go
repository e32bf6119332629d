package leveldb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/joshdurbin/offgate/internal/cachestore"
	"github.com/joshdurbin/offgate/internal/domain"
)

// keySep separates the partition name from the request key in stored
// keys. Partition names never contain a NUL byte.
const keySep = "\x00"

// Store implements cachestore.Store on top of a goleveldb database, so
// cached responses survive gateway restarts.
type Store struct {
	db *leveldb.DB
}

// New opens (or creates) a leveldb-backed cache store at path
func New(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	return &Store{db: db}, nil
}

func storeKey(partition, key string) []byte {
	return []byte(partition + keySep + key)
}

// Get retrieves a stored snapshot by partition and request key
func (s *Store) Get(ctx context.Context, partition, key string) (*domain.ResponseSnapshot, bool) {
	raw, err := s.db.Get(storeKey(partition, key), nil)
	if err != nil {
		return nil, false
	}

	var snapshot domain.ResponseSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, false
	}

	return &snapshot, true
}

// Put stores a snapshot, replacing any existing entry for the key
func (s *Store) Put(ctx context.Context, partition, key string, snapshot *domain.ResponseSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := s.db.Put(storeKey(partition, key), raw, nil); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// Delete removes a single entry
func (s *Store) Delete(ctx context.Context, partition, key string) error {
	if err := s.db.Delete(storeKey(partition, key), nil); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Keys returns all request keys stored in a partition
func (s *Store) Keys(ctx context.Context, partition string) ([]string, error) {
	prefix := []byte(partition + keySep)
	it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	var keys []string
	for it.Next() {
		keys = append(keys, string(bytes.TrimPrefix(it.Key(), prefix)))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate partition %s: %w", partition, err)
	}

	return keys, nil
}

// Partitions returns the names of all partitions holding at least one entry
func (s *Store) Partitions(ctx context.Context) ([]string, error) {
	it := s.db.NewIterator(nil, nil)
	defer it.Release()

	seen := make(map[string]bool)
	var names []string
	for it.Next() {
		idx := bytes.IndexByte(it.Key(), 0)
		if idx < 0 {
			continue
		}
		name := string(it.Key()[:idx])
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate partitions: %w", err)
	}

	return names, nil
}

// DropPartition removes a partition and all of its entries
func (s *Store) DropPartition(ctx context.Context, partition string) error {
	it := s.db.NewIterator(util.BytesPrefix([]byte(partition+keySep)), nil)
	defer it.Release()

	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("failed to iterate partition %s: %w", partition, err)
	}

	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to drop partition %s: %w", partition, err)
	}
	return nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ensure Store implements the interface
var _ cachestore.Store = (*Store)(nil)
