// Package credentials stores API keys for the services sway talks to in
// credentials.toml, next to config.toml in the .sway/ directory.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/sway/pkg/dotdir"
)

const (
	credentialsFile = "credentials.toml"

	currentVersion = 0
)

// Services with a stored key.
const (
	// Remote is the hosted personalization backend.
	Remote = "remote"

	// Qdrant is a Qdrant Cloud vector store.
	Qdrant = "qdrant"
)

// serviceEnvVars maps service names to the environment variable that
// overrides the stored key.
var serviceEnvVars = map[string]string{
	Remote: "SWAY_API_KEY",
	Qdrant: "QDRANT_API_KEY",
}

// Manager manages reading and writing credentials.toml in the .sway/ directory.
type Manager struct {
	targetPath string
}

// NewManager creates a new credentials Manager. If override is non-empty it is
// used as the .sway/ directory; otherwise the standard dotdir resolution applies.
// When no .sway/ directory is found, one is created at ~/.sway/.
func NewManager(override string) (*Manager, error) {
	ddm := dotdir.NewManager()
	target, err := ddm.Target(override)
	if err != nil {
		return nil, err
	}

	if target == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home dir: %w", err)
		}
		target, err = ddm.Init(home)
		if err != nil {
			return nil, err
		}
	}

	return &Manager{targetPath: filepath.Join(target, credentialsFile)}, nil
}

// Load reads credentials.toml from the target directory.
// Returns an empty Credentials if the file does not exist.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Credentials{
				Version:  currentVersion,
				Services: make(map[string]ServiceCredential),
			}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	creds := &Credentials{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	if creds.Services == nil {
		creds.Services = make(map[string]ServiceCredential)
	}

	return creds, nil
}

// Save writes credentials to credentials.toml with 0600 permissions.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.WriteFile(m.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	return nil
}

// SetKey stores an API key for the given service.
func (m *Manager) SetKey(service, key string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	creds.Services[service] = ServiceCredential{APIKey: key}

	return m.Save(creds)
}

// GetKey returns the stored API key for the given service.
// Returns an empty string if no key is stored.
func (m *Manager) GetKey(service string) (string, error) {
	creds, err := m.Load()
	if err != nil {
		return "", err
	}

	return creds.Services[service].APIKey, nil
}

// Resolve returns the key to use for service: the service's environment
// variable when set, the stored key otherwise.
func (m *Manager) Resolve(service string) (string, error) {
	if env := serviceEnvVars[service]; env != "" {
		if key := os.Getenv(env); key != "" {
			return key, nil
		}
	}
	return m.GetKey(service)
}

// RemoveKey deletes the stored credential for a service.
func (m *Manager) RemoveKey(service string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	delete(creds.Services, service)

	return m.Save(creds)
}

// ListServices returns the names of services that have stored credentials.
func (m *Manager) ListServices() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}

	services := make([]string, 0, len(creds.Services))
	for name := range creds.Services {
		services = append(services, name)
	}

	sort.Strings(services)

	return services, nil
}

// GetTarget returns the resolved path to the credentials file.
func (m *Manager) GetTarget() string {
	return m.targetPath
}

// EnvVarForService returns the environment variable name for a given service.
// Returns an empty string for unknown services.
func EnvVarForService(service string) string {
	return serviceEnvVars[service]
}

// SupportedServices returns the services that take an API key.
func SupportedServices() []string {
	return []string{Remote, Qdrant}
}

// IsSupportedService returns true if the given service is supported.
func IsSupportedService(service string) bool {
	return slices.Contains(SupportedServices(), service)
}
