package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "buildsite"
	keyringPrefix  = "secret_"
	// keyringIndex holds the names of stored secrets since the keyring
	// cannot enumerate entries
	keyringIndex = "_index"
)

// KeyringStore implements SecretStore using the system keychain
type KeyringStore struct {
	mu sync.Mutex
}

// NewKeyringStore creates a keyring store after checking the keyring works
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Store saves the secret to the system keychain
func (k *KeyringStore) Store(secret *Secret) error {
	if secret == nil || secret.Name == "" {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(secret)
	if err != nil {
		return fmt.Errorf("failed to marshal secret: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Set(keyringService, keyringPrefix+secret.Name, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}

	names := k.names()
	names[secret.Name] = true
	return k.saveNames(names)
}

// Retrieve gets the secret from the system keychain
func (k *KeyringStore) Retrieve(name string) (*Secret, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}

	data, err := keyring.Get(keyringService, keyringPrefix+name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var secret Secret
	if err := json.Unmarshal([]byte(data), &secret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal secret: %w", err)
	}
	return &secret, nil
}

// List returns the secrets recorded in the keyring index
func (k *KeyringStore) List() ([]*Secret, error) {
	k.mu.Lock()
	names := k.names()
	k.mu.Unlock()

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	secrets := make([]*Secret, 0, len(sorted))
	for _, name := range sorted {
		secret, err := k.Retrieve(name)
		if err != nil {
			continue
		}
		secrets = append(secrets, secret)
	}
	return secrets, nil
}

// Delete removes the secret from the system keychain
func (k *KeyringStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Delete(keyringService, keyringPrefix+name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}

	names := k.names()
	delete(names, name)
	return k.saveNames(names)
}

// Exists checks if the secret is in the keychain
func (k *KeyringStore) Exists(name string) bool {
	if name == "" {
		return false
	}
	_, err := keyring.Get(keyringService, keyringPrefix+name)
	return err == nil
}

func (k *KeyringStore) names() map[string]bool {
	names := make(map[string]bool)

	data, err := keyring.Get(keyringService, keyringIndex)
	if err != nil {
		return names
	}

	var list []string
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return names
	}
	for _, name := range list {
		names[name] = true
	}
	return names
}

func (k *KeyringStore) saveNames(names map[string]bool) error {
	list := make([]string, 0, len(names))
	for name := range names {
		list = append(list, name)
	}
	sort.Strings(list)

	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal keyring index: %w", err)
	}
	if err := keyring.Set(keyringService, keyringIndex, string(data)); err != nil {
		return fmt.Errorf("failed to update keyring index: %w", err)
	}
	return nil
}
