package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Credentials is the optional credentials.json next to settings.yaml. It is
// only ever read.
type Credentials struct {
	Keys map[string]string `json:"keys"` // account ID → API key
}

func CredentialsPath() string {
	return filepath.Join(ConfigDir(), "credentials.json")
}

func LoadCredentials() (Credentials, error) {
	return LoadCredentialsFrom(CredentialsPath())
}

func LoadCredentialsFrom(path string) (Credentials, error) {
	creds := Credentials{Keys: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return creds, nil
		}
		return creds, fmt.Errorf("reading credentials: %w", err)
	}

	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{Keys: make(map[string]string)}, fmt.Errorf("parsing credentials %s: %w", path, err)
	}

	if creds.Keys == nil {
		creds.Keys = make(map[string]string)
	}

	return creds, nil
}

// Key returns the stored key for accountID, falling back to the provider id.
func (c Credentials) Key(accountID, provider string) string {
	if v := strings.TrimSpace(c.Keys[accountID]); v != "" {
		return v
	}
	return strings.TrimSpace(c.Keys[provider])
}
