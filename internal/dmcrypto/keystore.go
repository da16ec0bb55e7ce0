package dmcrypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNoPrivateKey reports that the store holds no key for the user.
var ErrNoPrivateKey = errors.New("dmcrypto: no private key for user")

// KeyStore holds private keys for users whose keys live on this node.
// Public keys go through the shared directory; private keys never do.
type KeyStore interface {
	PrivateKey(userID uint) ([]byte, error)
	StorePrivateKey(userID uint, key []byte) error
}

// FileKeyStore persists private keys as hex files under a directory, one file
// per user, mode 0600.
type FileKeyStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileKeyStore creates the directory if needed and returns the store.
func NewFileKeyStore(dir string) (*FileKeyStore, error) {
	if dir == "" {
		return nil, errors.New("dmcrypto: key directory is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("dmcrypto: create key dir: %w", err)
	}
	return &FileKeyStore{dir: dir}, nil
}

func (s *FileKeyStore) path(userID uint) string {
	return filepath.Join(s.dir, fmt.Sprintf("user-%d.key", userID))
}

// PrivateKey returns the stored private key for the user.
func (s *FileKeyStore) PrivateKey(userID uint) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(userID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoPrivateKey
	}
	if err != nil {
		return nil, fmt.Errorf("dmcrypto: read key: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("dmcrypto: decode key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("dmcrypto: stored key has wrong size %d", len(key))
	}
	return key, nil
}

// StorePrivateKey writes the key for the user, replacing any existing one.
func (s *FileKeyStore) StorePrivateKey(userID uint, key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("dmcrypto: key must be %d bytes", KeySize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	encoded := hex.EncodeToString(key)
	if err := os.WriteFile(s.path(userID), []byte(encoded), 0o600); err != nil {
		return fmt.Errorf("dmcrypto: write key: %w", err)
	}
	return nil
}

// MemoryKeyStore is an in-memory KeyStore for tests.
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[uint][]byte
}

// NewMemoryKeyStore returns an empty in-memory store.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[uint][]byte)}
}

// PrivateKey returns the stored key for the user.
func (s *MemoryKeyStore) PrivateKey(userID uint) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[userID]
	if !ok {
		return nil, ErrNoPrivateKey
	}
	return key, nil
}

// StorePrivateKey stores the key for the user.
func (s *MemoryKeyStore) StorePrivateKey(userID uint, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[userID] = key
	return nil
}
