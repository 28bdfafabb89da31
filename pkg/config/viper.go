package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/sway/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the SWAY_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (SWAY_API_LISTEN, SWAY_BACKEND_API_KEY, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: SWAY_API_LISTEN, SWAY_STORAGE_POSTGRES_DSN, etc.
	v.SetEnvPrefix("SWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	v.SetDefault("api.listen", d.API.Listen)
	v.SetDefault("api.disable_mcp", d.API.DisableMCP)
	v.SetDefault("client.api_target", d.Client.APITarget)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.target", d.VectorStore.Target)
	v.SetDefault("vector_store.api_key", d.VectorStore.APIKey)
	v.SetDefault("vector_store.collection", d.VectorStore.Collection)
	v.SetDefault("vector_store.dimensions", d.VectorStore.Dimensions)
	v.SetDefault("vector_store.metric", d.VectorStore.Metric)

	v.SetDefault("backend.mode", d.Backend.Mode)
	v.SetDefault("backend.url", d.Backend.URL)
	v.SetDefault("backend.api_key", d.Backend.APIKey)
	v.SetDefault("backend.blueprint_dir", d.Backend.BlueprintDir)

	v.SetDefault("personalize.batch_size", d.Personalize.BatchSize)
	v.SetDefault("personalize.quantizer_train_size", d.Personalize.QuantizerTrainSize)
	v.SetDefault("personalize.quantizer_type", d.Personalize.QuantizerType)
	v.SetDefault("personalize.enable_history", d.Personalize.EnableHistory)
	v.SetDefault("personalize.embedding_last_n", d.Personalize.EmbeddingLastN)

	v.SetDefault("events.enabled", d.Events.Enabled)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.source", d.Log.Source)
}
