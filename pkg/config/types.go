package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent sway configuration stored as config.toml
// in the .sway/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	Storage     StorageConfig     `toml:"storage"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Backend     BackendConfig     `toml:"backend"`
	Personalize PersonalizeConfig `toml:"personalize"`
	Events      EventsConfig      `toml:"events"`
	Log         LogConfig         `toml:"log"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen     string `toml:"listen,omitempty"`
	DisableMCP bool   `toml:"disable_mcp,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running API
// server. Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// StorageConfig selects where the local backend keeps sessions.
type StorageConfig struct {
	// Driver is one of "memory", "sqlite" or "postgres".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// VectorStoreConfig holds vector store settings. Target is a database path
// for sqlite, host:port for qdrant and a URL for chroma.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
	Collection string `toml:"collection,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
	Metric     string `toml:"metric,omitempty"`
}

// BackendConfig selects the personalization backend.
type BackendConfig struct {
	// Mode is "local" or "remote".
	Mode         string `toml:"mode,omitempty"`
	URL          string `toml:"url,omitempty"`
	APIKey       string `toml:"api_key,omitempty"`
	BlueprintDir string `toml:"blueprint_dir,omitempty"`
}

// PersonalizeConfig holds Personalizer settings.
type PersonalizeConfig struct {
	BatchSize          uint   `toml:"batch_size,omitempty"`
	QuantizerTrainSize uint   `toml:"quantizer_train_size,omitempty"`
	QuantizerType      string `toml:"quantizer_type,omitempty"`
	EnableHistory      bool   `toml:"enable_history,omitempty"`
	EmbeddingLastN     uint   `toml:"embedding_last_n,omitempty"`
}

// EventsConfig holds the event stream settings.
type EventsConfig struct {
	Enabled bool     `toml:"enabled,omitempty"`
	Brokers []string `toml:"brokers,omitempty"`
	Topic   string   `toml:"topic,omitempty"`
}

// LogConfig controls serve logging. Stdout is pretty unless JSON is set;
// File, when set, also receives every record as JSON.
type LogConfig struct {
	JSON   bool   `toml:"json,omitempty"`
	File   string `toml:"file,omitempty"`
	Source bool   `toml:"source,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"api.listen":      stringKey(func(c *Config) *string { return &c.API.Listen }),
	"api.disable_mcp": boolKey("api.disable_mcp", func(c *Config) *bool { return &c.API.DisableMCP }),

	"client.api_target": stringKey(func(c *Config) *string { return &c.Client.APITarget }),

	"storage.driver":       stringKey(func(c *Config) *string { return &c.Storage.Driver }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"vector_store.provider":   stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":     stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.api_key":    stringKey(func(c *Config) *string { return &c.VectorStore.APIKey }),
	"vector_store.collection": stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),
	"vector_store.dimensions": uintKey("vector_store.dimensions", func(c *Config) *uint { return &c.VectorStore.Dimensions }),
	"vector_store.metric":     stringKey(func(c *Config) *string { return &c.VectorStore.Metric }),

	"backend.mode":          stringKey(func(c *Config) *string { return &c.Backend.Mode }),
	"backend.url":           stringKey(func(c *Config) *string { return &c.Backend.URL }),
	"backend.api_key":       stringKey(func(c *Config) *string { return &c.Backend.APIKey }),
	"backend.blueprint_dir": stringKey(func(c *Config) *string { return &c.Backend.BlueprintDir }),

	"personalize.batch_size":           uintKey("personalize.batch_size", func(c *Config) *uint { return &c.Personalize.BatchSize }),
	"personalize.quantizer_train_size": uintKey("personalize.quantizer_train_size", func(c *Config) *uint { return &c.Personalize.QuantizerTrainSize }),
	"personalize.quantizer_type":       stringKey(func(c *Config) *string { return &c.Personalize.QuantizerType }),
	"personalize.enable_history":       boolKey("personalize.enable_history", func(c *Config) *bool { return &c.Personalize.EnableHistory }),
	"personalize.embedding_last_n":     uintKey("personalize.embedding_last_n", func(c *Config) *uint { return &c.Personalize.EmbeddingLastN }),

	"events.enabled": boolKey("events.enabled", func(c *Config) *bool { return &c.Events.Enabled }),
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.Events.Brokers = splitList(v)
			return nil
		},
	},
	"events.topic": stringKey(func(c *Config) *string { return &c.Events.Topic }),

	"log.json":   boolKey("log.json", func(c *Config) *bool { return &c.Log.JSON }),
	"log.file":   stringKey(func(c *Config) *string { return &c.Log.File }),
	"log.source": boolKey("log.source", func(c *Config) *bool { return &c.Log.Source }),
}

// splitList splits a comma separated value, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
