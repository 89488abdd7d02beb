package testutil

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"
)

// SignedURLBase prefixes every link minted by RecordingStore.
const SignedURLBase = "https://signed.test/"

// ErrStoreRefused is returned by RecordingStore when told to fail.
var ErrStoreRefused = errors.New("store refused request")

// RecordingStore is an in-memory core.ObjectStore that remembers every call.
type RecordingStore struct {
	mu             sync.Mutex
	objects        map[string][]byte
	uploads        []string
	signTTLs       []time.Duration
	putAttempts    int
	ShouldFailPut  bool
	ShouldFailSign bool
	// FailPutFrom, when positive, refuses the upload attempt with that
	// 1-based index and every later one.
	FailPutFrom int
}

// NewRecordingStore creates an empty RecordingStore.
func NewRecordingStore() *RecordingStore {
	return &RecordingStore{objects: make(map[string][]byte)}
}

// UploadFile copies the file at path into memory under key.
func (s *RecordingStore) UploadFile(_ context.Context, key, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putAttempts++

	if s.ShouldFailPut || (s.FailPutFrom > 0 && s.putAttempts >= s.FailPutFrom) {
		return ErrStoreRefused
	}

	data, err := os.ReadFile(path) // #nosec G304 -- test fixture path
	if err != nil {
		return err
	}

	s.objects[key] = data
	s.uploads = append(s.uploads, key)

	return nil
}

// SignedURL returns SignedURLBase + key.
func (s *RecordingStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if s.ShouldFailSign {
		return "", ErrStoreRefused
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.signTTLs = append(s.signTTLs, ttl)

	return SignedURLBase + key, nil
}

// Download returns a stored object.
func (s *RecordingStore) Download(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[key]
	if !ok {
		return nil, os.ErrNotExist
	}

	return data, nil
}

// Uploads returns the keys uploaded so far, in order.
func (s *RecordingStore) Uploads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.uploads...)
}

// SignTTLs returns the ttl of every signing call, in order.
func (s *RecordingStore) SignTTLs() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]time.Duration(nil), s.signTTLs...)
}

// Object returns the bytes stored under key.
func (s *RecordingStore) Object(key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.objects[key]
}
