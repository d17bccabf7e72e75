package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"
)

// BoltStore implements Store using BoltDB, one bucket per category created
// lazily on first use since pointer categories are per-entity-type and not
// known up front (unlike the teacher's fixed bucket list).
type BoltStore struct {
	db *bolt.DB

	mu      sync.Mutex
	buckets map[string]bool
}

// NewBoltStore opens (or creates) the content server's database file under
// dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "catalyst.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	return &BoltStore{db: db, buckets: make(map[string]bool)}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) ensureBucket(category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buckets[category] {
		return nil
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(category))
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: create bucket %s: %w", category, err)
	}
	s.buckets[category] = true
	return nil
}

func (s *BoltStore) Exists(_ context.Context, category, key string) (bool, error) {
	if err := s.ensureBucket(category); err != nil {
		return false, err
	}
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(category))
		found = b.Get([]byte(key)) != nil
		return nil
	})
	return found, err
}

func (s *BoltStore) Get(_ context.Context, category, key string) ([]byte, error) {
	if err := s.ensureBucket(category); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(category))
		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *BoltStore) Put(_ context.Context, category, key string, data []byte) error {
	if err := s.ensureBucket(category); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(category))
		return b.Put([]byte(key), data)
	})
}

func (s *BoltStore) Delete(_ context.Context, category, key string) error {
	if err := s.ensureBucket(category); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(category))
		return b.Delete([]byte(key))
	})
}

func (s *BoltStore) Keys(_ context.Context, category string) ([]string, error) {
	if err := s.ensureBucket(category); err != nil {
		return nil, err
	}
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(category))
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}
