package secret

import (
	"os"
	"strings"
	"sync"
)

// SecretStore provides a pluggable interface for storing sensitive data
// such as database passwords and object store keys.
type SecretStore interface {
	// Set stores a secret value under the given key.
	Set(key string, value []byte) error

	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)

	// Delete removes the secret for the given key.
	Delete(key string) error
}

// ── EnvStore ───────────────────────────────────────────────
// Read-mostly store backed by environment variables, for headless runs.
// Key "db:abc-1" maps to DOCMODEL_SECRET_DB_ABC_1.

type EnvStore struct {
	Prefix string
}

func NewEnvStore() *EnvStore {
	return &EnvStore{Prefix: "DOCMODEL_SECRET_"}
}

func (e *EnvStore) envKey(key string) string {
	var sb strings.Builder
	sb.WriteString(e.Prefix)
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func (e *EnvStore) Set(key string, value []byte) error {
	return os.Setenv(e.envKey(key), string(value))
}

func (e *EnvStore) Get(key string) ([]byte, error) {
	v, ok := os.LookupEnv(e.envKey(key))
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}

func (e *EnvStore) Delete(key string) error {
	return os.Unsetenv(e.envKey(key))
}

// ── MemoryStore ────────────────────────────────────────────

type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// ── Chain ──────────────────────────────────────────────────

// Chain reads from the first store holding the key and writes to the
// first store only.
type Chain []SecretStore

func (c Chain) Set(key string, value []byte) error {
	if len(c) == 0 {
		return nil
	}
	return c[0].Set(key, value)
}

func (c Chain) Get(key string) ([]byte, error) {
	for _, s := range c {
		v, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		if len(v) > 0 {
			return v, nil
		}
	}
	return nil, nil
}

func (c Chain) Delete(key string) error {
	for _, s := range c {
		if err := s.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
