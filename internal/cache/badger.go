package cache

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerCache persists variant entries in a badger database on the
// local device.
type BadgerCache struct {
	db *badger.DB
}

var _ VariantCache = (*BadgerCache)(nil)

type BadgerConfig struct {
	DataPath string
	InMemory bool
}

func NewBadgerCache(config BadgerConfig) (*BadgerCache, error) {
	opts := badger.DefaultOptions(config.DataPath)
	if config.InMemory {
		opts = opts.WithInMemory(true)
	}
	// The cache is small and read-heavy; badger's own logging is noise
	// here.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open variant cache: %w", err)
	}

	return &BadgerCache{db: db}, nil
}

func (c *BadgerCache) Get(key string) (*StoredVariant, error) {
	var stored *StoredVariant

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(KeyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var v StoredVariant
			if err := json.Unmarshal(val, &v); err != nil {
				return fmt.Errorf("failed to decode cached variant: %w", err)
			}
			stored = &v
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return stored, nil
}

func (c *BadgerCache) Put(key string, v StoredVariant) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode variant: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(KeyPrefix+key), data)
	})
}

func (c *BadgerCache) Delete(key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(KeyPrefix + key))
	})
}

func (c *BadgerCache) Close() error {
	return c.db.Close()
}
