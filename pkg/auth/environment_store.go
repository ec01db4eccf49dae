package auth

import (
	"os"
	"sort"
	"strings"
	"time"
)

// EnvPrefix is prepended to the upper-cased secret name,
// e.g. BUILDSITE_SECRET_SMTP_PASSWORD
const EnvPrefix = "BUILDSITE_SECRET_"

// EnvironmentStore implements SecretStore using environment variables. It
// is read-only and suits containers where secrets arrive through the
// environment.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based secret store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// EnvVar returns the variable name holding the named secret
func EnvVar(name string) string {
	return EnvPrefix + strings.ToUpper(name)
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(secret *Secret) error {
	return ErrStoreUnavailable
}

// Retrieve reads the secret from its environment variable
func (e *EnvironmentStore) Retrieve(name string) (*Secret, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}

	value := os.Getenv(EnvVar(name))
	if value == "" {
		return nil, ErrCredentialsNotFound
	}

	return &Secret{
		Name:         name,
		Value:        value,
		LastModified: time.Time{},
	}, nil
}

// List returns every secret present in the environment
func (e *EnvironmentStore) List() ([]*Secret, error) {
	var secrets []*Secret

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if !ValidName(name) {
			continue
		}
		secrets = append(secrets, &Secret{Name: name, Value: value})
	}

	sort.Slice(secrets, func(i, j int) bool { return secrets[i].Name < secrets[j].Name })
	return secrets, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if the secret's variable is set
func (e *EnvironmentStore) Exists(name string) bool {
	return name != "" && os.Getenv(EnvVar(name)) != ""
}
