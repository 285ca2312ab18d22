package hscl

import (
	"fmt"
	"math/rand"
	"os"
)

// KeySize and DataSize mirror the record shape the harness generates. Keys
// are "T<thread>_K<id>" and values are DataSize bytes of uppercase noise.
const (
	KeySize  = 16
	DataSize = 256
)

// StoreStatus is the outcome of a store operation. DuplicateKey on insert
// and NotFound on find/update are the two expected non-success outcomes and
// are absorbed silently; StoreError is logged but never aborts a worker.
type StoreStatus int

const (
	StoreOK StoreStatus = iota
	StoreDuplicateKey
	StoreNotFound
	StoreError
)

func (s StoreStatus) String() string {
	switch s {
	case StoreOK:
		return "ok"
	case StoreDuplicateKey:
		return "duplicate-key"
	case StoreNotFound:
		return "not-found"
	}
	return "error"
}

// Store is the external key-value collaborator the harness exercises. Its
// internals are opaque; the harness only relies on this contract. All calls
// happen under the benchmark lock, so implementations need no internal
// synchronization beyond what they already have.
type Store interface {
	Insert(key string, value []byte) StoreStatus
	Find(key string) ([]byte, StoreStatus)
	Update(key string, value []byte) StoreStatus
	Close() error
}

// KeyFor formats the shared key namespace: any thread may look up keys
// inserted by any other thread.
func KeyFor(threadID, keyID int) string {
	return fmt.Sprintf("T%02d_K%08d", threadID, keyID)
}

// randomValue fills a DataSize-byte value from the worker's random stream.
func randomValue(rng *rand.Rand, buf []byte) []byte {
	for i := range buf {
		buf[i] = byte('A' + rng.Intn(26))
	}
	return buf
}

// FileStore is the bundled collaborator: an in-memory table whose backing
// file is created at open time so that resource-initialization failures
// surface before any thread is launched. Persistence is not the point of
// the harness; the file records only a closing summary.
type FileStore struct {
	path string
	f    *os.File
	data map[string][]byte
}

// OpenFileStore creates (or truncates) the store file and an empty table.
func OpenFileStore(path string) (*FileStore, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create store file: %w", err)
	}
	return &FileStore{path: path, f: f, data: make(map[string][]byte)}, nil
}

// Insert adds a record, refusing to overwrite an existing key.
func (s *FileStore) Insert(key string, value []byte) StoreStatus {
	if _, ok := s.data[key]; ok {
		return StoreDuplicateKey
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.data[key] = v
	return StoreOK
}

// Find looks up a record.
func (s *FileStore) Find(key string) ([]byte, StoreStatus) {
	v, ok := s.data[key]
	if !ok {
		return nil, StoreNotFound
	}
	return v, StoreOK
}

// Update is find-then-insert-with-overwrite: a missing key reports NotFound
// and writes nothing.
func (s *FileStore) Update(key string, value []byte) StoreStatus {
	if _, ok := s.data[key]; !ok {
		return StoreNotFound
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.data[key] = v
	return StoreOK
}

// Len reports the number of stored records.
func (s *FileStore) Len() int { return len(s.data) }

// Close writes the record count to the backing file and releases it.
func (s *FileStore) Close() error {
	if s.f == nil {
		return nil
	}
	fmt.Fprintf(s.f, "records=%d\n", len(s.data))
	err := s.f.Close()
	s.f = nil
	return err
}

// MemStore is a Store without a backing file, for tests and embedding.
type MemStore struct {
	data map[string][]byte
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (s *MemStore) Insert(key string, value []byte) StoreStatus {
	if _, ok := s.data[key]; ok {
		return StoreDuplicateKey
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.data[key] = v
	return StoreOK
}

func (s *MemStore) Find(key string) ([]byte, StoreStatus) {
	v, ok := s.data[key]
	if !ok {
		return nil, StoreNotFound
	}
	return v, StoreOK
}

func (s *MemStore) Update(key string, value []byte) StoreStatus {
	if _, ok := s.data[key]; !ok {
		return StoreNotFound
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.data[key] = v
	return StoreOK
}

func (s *MemStore) Len() int { return len(s.data) }

func (s *MemStore) Close() error { return nil }
