package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"time"
)

// Well-known secrets read by the server at startup
const (
	SecretSMTPPassword = "smtp_password"
	SecretBackendToken = "backend_token"
)

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)

var secretNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// Secret is a named credential such as the SMTP password
type Secret struct {
	Name         string    `json:"name"`
	Value        string    `json:"value"`
	LastModified time.Time `json:"last_modified"`
}

// SecretStore is the interface for storing and retrieving secrets
type SecretStore interface {
	// Store saves a secret, replacing any previous value
	Store(secret *Secret) error

	// Retrieve gets the secret with the given name
	Retrieve(name string) (*Secret, error)

	// List returns all stored secrets
	List() ([]*Secret, error)

	// Delete removes the secret with the given name
	Delete(name string) error

	// Exists checks if a secret is stored under name
	Exists(name string) bool
}

// ValidName reports whether name can be used as a secret name
func ValidName(name string) bool {
	return secretNamePattern.MatchString(name)
}

// Manager handles secret storage with fallback mechanisms
type Manager struct {
	stores []SecretStore
}

// NewManager creates a manager backed by the system keyring when available,
// then an encrypted file, then environment variables
func NewManager() (*Manager, error) {
	var stores []SecretStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "secrets.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager that consults stores in order
func NewManagerWithStores(stores ...SecretStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves the secret in the first store that accepts it
func (m *Manager) Store(secret *Secret) error {
	if secret == nil || !ValidName(secret.Name) {
		return fmt.Errorf("%w: secret name must be lowercase letters, digits and underscores", ErrInvalidCredentials)
	}
	if secret.Value == "" {
		return fmt.Errorf("%w: secret value is required", ErrInvalidCredentials)
	}

	secret.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(secret)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store secret: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets the secret from the first store that has it
func (m *Manager) Retrieve(name string) (*Secret, error) {
	for _, store := range m.stores {
		if secret, err := store.Retrieve(name); err == nil && secret != nil {
			return secret, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
}

// Resolve returns current when it is set, otherwise the stored secret value.
// A missing secret is not an error; the empty string is returned.
func (m *Manager) Resolve(name, current string) (string, error) {
	if current != "" {
		return current, nil
	}
	secret, err := m.Retrieve(name)
	if errors.Is(err, ErrCredentialsNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return secret.Value, nil
}

// List returns every secret across all stores, sorted by name. When a name
// exists in several stores the most recently modified copy wins.
func (m *Manager) List() ([]*Secret, error) {
	byName := make(map[string]*Secret)

	for _, store := range m.stores {
		secrets, err := store.List()
		if err != nil {
			continue
		}
		for _, secret := range secrets {
			if existing, ok := byName[secret.Name]; !ok || secret.LastModified.After(existing.LastModified) {
				byName[secret.Name] = secret
			}
		}
	}

	result := make([]*Secret, 0, len(byName))
	for _, secret := range byName {
		result = append(result, secret)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, nil
}

// Delete removes the secret from every store holding it
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		err := store.Delete(name)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, ErrCredentialsNotFound), errors.Is(err, ErrStoreUnavailable):
		default:
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete secret: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
	}
	return nil
}

// getConfigDir returns the per-user configuration directory, creating it
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "buildsite")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "buildsite")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "buildsite")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "buildsite")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// Sanitize returns a copy of the secret with its value masked
func Sanitize(secret *Secret) *Secret {
	if secret == nil {
		return nil
	}

	return &Secret{
		Name:         secret.Name,
		Value:        maskString(secret.Value),
		LastModified: secret.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
