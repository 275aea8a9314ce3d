package auth

import (
	"os"
	"time"
)

// EnvProfile is the profile name reported for environment credentials
const EnvProfile = "env"

// EnvironmentStore reads credentials from SPOTIFY_CLIENT_ID and
// SPOTIFY_CLIENT_SECRET. It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(*Credentials) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment credentials. Any profile name matches.
func (e *EnvironmentStore) Retrieve(string) (*Credentials, error) {
	id, secret := envCredentials()
	if id == "" || secret == "" {
		return nil, ErrCredentialsNotFound
	}

	return &Credentials{
		Profile:      EnvProfile,
		ClientID:     id,
		ClientSecret: secret,
		LastModified: time.Now(),
	}, nil
}

// List returns the environment credentials if both variables are set
func (e *EnvironmentStore) List() ([]*Credentials, error) {
	creds, err := e.Retrieve("")
	if err != nil {
		return []*Credentials{}, nil
	}
	return []*Credentials{creds}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(string) bool {
	id, secret := envCredentials()
	return id != "" && secret != ""
}

func envCredentials() (string, string) {
	id := os.Getenv("SPOTIFY_CLIENT_ID")
	secret := os.Getenv("SPOTIFY_CLIENT_SECRET")
	if v := os.Getenv("SPOTIFETCH_CLIENT_ID"); v != "" {
		id = v
	}
	if v := os.Getenv("SPOTIFETCH_CLIENT_SECRET"); v != "" {
		secret = v
	}
	return id, secret
}
