// Package api provides the HTTP API server for sessions, batches, signals and
// blueprints.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// DisableMCP leaves the /mcp endpoint without tools.
	DisableMCP bool
}
