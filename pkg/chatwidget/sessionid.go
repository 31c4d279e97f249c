package chatwidget

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionStorageKey is the storage key holding the visitor's session id.
const SessionStorageKey = "chat_session_id"

// KeyValueStorage is durable per-visitor storage, the equivalent of browser local storage.
type KeyValueStorage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

// SessionIDStore hands out the visitor's stable session id.
type SessionIDStore struct {
	storage KeyValueStorage
	logger  *zap.Logger

	mu        sync.Mutex
	ephemeral string
}

// NewSessionIDStore creates a store backed by storage. A nil storage yields an id that
// lives only as long as the store.
func NewSessionIDStore(storage KeyValueStorage, logger *zap.Logger) *SessionIDStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionIDStore{storage: storage, logger: logger}
}

// GetOrCreate returns the persisted session id, generating and persisting one on first
// use. If storage is unavailable the id is kept in memory for the store's lifetime.
func (s *SessionIDStore) GetOrCreate() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ephemeral != "" {
		return s.ephemeral
	}
	if s.storage == nil {
		s.ephemeral = uuid.NewString()
		return s.ephemeral
	}

	id, ok, err := s.storage.Get(SessionStorageKey)
	if err != nil {
		s.logger.Warn("session storage unreadable, using ephemeral session", zap.Error(err))
		s.ephemeral = uuid.NewString()
		return s.ephemeral
	}
	if ok && id != "" {
		return id
	}

	id = uuid.NewString()
	if err := s.storage.Set(SessionStorageKey, id); err != nil {
		s.logger.Warn("session storage unwritable, using ephemeral session", zap.Error(err))
		s.ephemeral = id
	}
	return id
}

// MemoryStorage is a KeyValueStorage that forgets everything on exit.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// FileStorage keeps key/value pairs in a JSON object on disk.
type FileStorage struct {
	path string
	mu   sync.Mutex
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

func (f *FileStorage) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (f *FileStorage) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	values[key] = value

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode storage: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write storage: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace storage: %w", err)
	}
	return nil
}

func (f *FileStorage) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read storage: %w", err)
	}

	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode storage: %w", err)
	}
	return values, nil
}
