package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --blueprint-dir
// on both "sway serve" and "sway blueprint").
type Flag struct {
	// Name is the long flag name (e.g. "listen").
	Name string

	// Shorthand is the one-letter short flag (e.g. "l"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "api.listen").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag, AddBoolFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagAPIListen          = "api-listen"
	FlagAPITarget          = "api-target"
	FlagDisableMCP         = "disable-mcp"
	FlagStorageDriver      = "storage-driver"
	FlagSQLite             = "sqlite"
	FlagPostgres           = "postgres"
	FlagVectorStoreProv    = "vector-store-provider"
	FlagVectorStoreTgt     = "vector-store-target"
	FlagVectorCollection   = "vector-store-collection"
	FlagVectorDims         = "vector-store-dimensions"
	FlagVectorMetric       = "vector-store-metric"
	FlagBackendMode        = "backend"
	FlagBackendURL         = "backend-url"
	FlagBackendAPIKey      = "api-key"
	FlagBlueprintDir       = "blueprint-dir"
	FlagBatchSize          = "batch-size"
	FlagQuantizerTrainSize = "quantizer-train-size"
	FlagQuantizerType      = "quantizer"
	FlagEnableHistory      = "history"
	FlagEventsEnabled      = "events"
	FlagEventsTopic        = "events-topic"
	FlagLogJSON            = "log-json"
	FlagLogFile            = "log-file"
)

// ServeFlags is the registry used by "sway serve".
var ServeFlags = FlagSet{
	FlagAPIListen:          {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagDisableMCP:         {Name: "disable-mcp", ViperKey: "api.disable_mcp", Description: "Do not mount the MCP endpoint"},
	FlagStorageDriver:      {Name: "storage", ViperKey: "storage.driver", Description: "Session storage driver (memory, sqlite, postgres)"},
	FlagSQLite:             {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite session database"},
	FlagPostgres:           {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagVectorStoreProv:    {Name: "vector-store-provider", ViperKey: "vector_store.provider", Description: "Vector store provider (memory, sqlite, qdrant, chroma)"},
	FlagVectorStoreTgt:     {Name: "vector-store-target", ViperKey: "vector_store.target", Description: "Vector store path (sqlite), host:port (qdrant) or URL (chroma)"},
	FlagVectorCollection:   {Name: "vector-store-collection", ViperKey: "vector_store.collection", Description: "Vector store collection, also the vector store id"},
	FlagVectorDims:         {Name: "vector-store-dimensions", ViperKey: "vector_store.dimensions", Description: "Embedding dimensions of the vector store"},
	FlagVectorMetric:       {Name: "vector-store-metric", ViperKey: "vector_store.metric", Description: "Distance metric (cosine_sim, euclidean_dist, dot_product)"},
	FlagBackendMode:        {Name: "backend", Shorthand: "b", ViperKey: "backend.mode", Description: "Personalization backend (local, remote)"},
	FlagBackendURL:         {Name: "backend-url", ViperKey: "backend.url", Description: "Remote backend API root, discovered when empty"},
	FlagBackendAPIKey:      {Name: "api-key", ViperKey: "backend.api_key", Description: "Remote backend API key"},
	FlagBlueprintDir:       {Name: "blueprint-dir", ViperKey: "backend.blueprint_dir", Description: "Directory of custom blueprint documents"},
	FlagBatchSize:          {Name: "batch-size", ViperKey: "personalize.batch_size", Description: "Default batch size"},
	FlagQuantizerTrainSize: {Name: "quantizer-train-size", ViperKey: "personalize.quantizer_train_size", Description: "Number of vectors sampled to train the quantizer"},
	FlagQuantizerType:      {Name: "quantizer", ViperKey: "personalize.quantizer_type", Description: "Quantizer type (scalar, product)"},
	FlagEnableHistory:      {Name: "history", ViperKey: "personalize.enable_history", Description: "Never serve content twice within a session"},
	FlagEventsEnabled:      {Name: "events", ViperKey: "events.enabled", Description: "Publish signal and batch events to Kafka"},
	FlagEventsTopic:        {Name: "events-topic", ViperKey: "events.topic", Description: "Kafka topic for events"},
	FlagLogJSON:            {Name: "log-json", ViperKey: "log.json", Description: "Write JSON logs to stdout instead of pretty output"},
	FlagLogFile:            {Name: "log-file", ViperKey: "log.file", Description: "Also append JSON logs to this file"},
}

// ServeFlagKeys lists every key of ServeFlags, for BindRegisteredFlags.
var ServeFlagKeys = []string{
	FlagAPIListen, FlagDisableMCP,
	FlagStorageDriver, FlagSQLite, FlagPostgres,
	FlagVectorStoreProv, FlagVectorStoreTgt, FlagVectorCollection, FlagVectorDims, FlagVectorMetric,
	FlagBackendMode, FlagBackendURL, FlagBackendAPIKey, FlagBlueprintDir,
	FlagBatchSize, FlagQuantizerTrainSize, FlagQuantizerType, FlagEnableHistory,
	FlagEventsEnabled, FlagEventsTopic,
	FlagLogJSON, FlagLogFile,
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}

// defaultBool returns the default bool value for a viper key from NewDefaultConfig.
func defaultBool(viperKey string) bool {
	v := viper.New()
	setViperDefaults(v)
	return v.GetBool(viperKey)
}
