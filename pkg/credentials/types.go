package credentials

// Credentials represents the stored API keys in credentials.toml.
type Credentials struct {
	Version  int                          `toml:"version"`
	Services map[string]ServiceCredential `toml:"services"`
}

// ServiceCredential holds the API key for a single service.
type ServiceCredential struct {
	APIKey string `toml:"api_key"`
}
