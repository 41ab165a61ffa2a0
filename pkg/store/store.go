// Package store keeps named Egg programs in a bbolt database.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oarkflow/json"
	bolt "go.etcd.io/bbolt"
)

var bucketPrograms = []byte("programs")

// ErrNotFound is returned when no program is stored under a name.
var ErrNotFound = errors.New("program not found")

// Program is a stored program record.
type Program struct {
	Name      string    `json:"name"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store wraps a bbolt database. It is safe for concurrent use.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPrograms)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init %s: %w", path, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put creates or replaces the program stored under name.
func (s *Store) Put(name, source string) (Program, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Program{}, errors.New("store: empty program name")
	}
	var saved Program
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPrograms)
		now := s.now().UTC()
		saved = Program{Name: name, Source: source, CreatedAt: now, UpdatedAt: now}
		if existing := b.Get([]byte(name)); existing != nil {
			var prev Program
			if err := json.Unmarshal(existing, &prev); err == nil {
				saved.CreatedAt = prev.CreatedAt
			}
		}
		data, err := json.Marshal(saved)
		if err != nil {
			return err
		}
		return b.Put([]byte(name), data)
	})
	if err != nil {
		return Program{}, fmt.Errorf("store: put %s: %w", name, err)
	}
	return saved, nil
}

// Get returns the program stored under name or ErrNotFound.
func (s *Store) Get(name string) (Program, error) {
	var prog Program
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPrograms).Get([]byte(name))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &prog)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Program{}, ErrNotFound
		}
		return Program{}, fmt.Errorf("store: get %s: %w", name, err)
	}
	return prog, nil
}

// List returns every stored name in byte order.
func (s *Store) List() ([]string, error) {
	names := []string{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPrograms).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return names, nil
}

// Delete removes name. Deleting a missing program returns ErrNotFound.
func (s *Store) Delete(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPrograms)
		if b.Get([]byte(name)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(name))
	})
}
