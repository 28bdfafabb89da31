package config

const (
	defaultAPIListen       = ":8081"
	defaultClientAPITarget = "http://localhost:8081"

	defaultStorageDriver = "sqlite"
	defaultSQLitePath    = "sway.db"

	defaultVectorProvider   = "sqlite"
	defaultVectorTarget     = "sway-vectors.db"
	defaultVectorCollection = "sway"
	defaultVectorDimensions = 768
	defaultVectorMetric     = "cosine_sim"

	defaultBackendMode = "local"

	defaultBatchSize          = 10
	defaultQuantizerTrainSize = 100
	defaultQuantizerType      = "scalar"
	defaultEmbeddingLastN     = 50

	defaultEventsTopic = "sway.events"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Storage: StorageConfig{
			Driver:     defaultStorageDriver,
			SQLitePath: defaultSQLitePath,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Target:     defaultVectorTarget,
			Collection: defaultVectorCollection,
			Dimensions: defaultVectorDimensions,
			Metric:     defaultVectorMetric,
		},
		Backend: BackendConfig{
			Mode: defaultBackendMode,
		},
		Personalize: PersonalizeConfig{
			BatchSize:          defaultBatchSize,
			QuantizerTrainSize: defaultQuantizerTrainSize,
			QuantizerType:      defaultQuantizerType,
			EmbeddingLastN:     defaultEmbeddingLastN,
		},
		Events: EventsConfig{
			Topic: defaultEventsTopic,
		},
	}
}
