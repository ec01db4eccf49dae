package auth

import (
	"sort"
	"sync"
)

// MockStore is an in-memory SecretStore for tests
type MockStore struct {
	secrets map[string]*Secret
	mu      sync.RWMutex

	// Error injection for testing
	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMockStore creates a new mock secret store
func NewMockStore() *MockStore {
	return &MockStore{secrets: make(map[string]*Secret)}
}

// Store saves a copy of the secret
func (m *MockStore) Store(secret *Secret) error {
	if m.StoreError != nil {
		return m.StoreError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if secret == nil || secret.Name == "" {
		return ErrInvalidCredentials
	}

	stored := *secret
	m.secrets[secret.Name] = &stored
	return nil
}

// Retrieve returns a copy of the named secret
func (m *MockStore) Retrieve(name string) (*Secret, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if name == "" {
		return nil, ErrInvalidCredentials
	}

	secret, exists := m.secrets[name]
	if !exists {
		return nil, ErrCredentialsNotFound
	}

	copied := *secret
	return &copied, nil
}

// List returns copies of every secret sorted by name
func (m *MockStore) List() ([]*Secret, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	secrets := make([]*Secret, 0, len(m.secrets))
	for _, secret := range m.secrets {
		copied := *secret
		secrets = append(secrets, &copied)
	}
	sort.Slice(secrets, func(i, j int) bool { return secrets[i].Name < secrets[j].Name })
	return secrets, nil
}

// Delete removes the named secret
func (m *MockStore) Delete(name string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		return ErrInvalidCredentials
	}
	if _, exists := m.secrets[name]; !exists {
		return ErrCredentialsNotFound
	}

	delete(m.secrets, name)
	return nil
}

// Exists checks if the secret is stored
func (m *MockStore) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.secrets[name]
	return exists
}

// Count returns the number of stored secrets
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.secrets)
}

// NewMockManager creates a Manager backed by a single MockStore
func NewMockManager() (*Manager, *MockStore) {
	store := NewMockStore()
	return NewManagerWithStores(store), store
}
