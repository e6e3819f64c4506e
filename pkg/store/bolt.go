package store

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const sessionBucket = "session"

// BoltStore implements KeyValueStore on top of an embedded bbolt database.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (creating if necessary) a bbolt database at path and ensures
// the session bucket exists.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Set writes value under key. The write is synced to disk before returning.
func (s *BoltStore) Set(key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(sessionBucket)).Put([]byte(key), value)
	})
}

// Get returns the value stored under key, or nil if the key is absent.
func (s *BoltStore) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(sessionBucket)).Get([]byte(key)); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	return value, err
}

// Delete removes key. Deleting an absent key is not an error.
func (s *BoltStore) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(sessionBucket)).Delete([]byte(key))
	})
}

// Close releases the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
