// Package servecmder provides the serve command, which runs the sway API
// server over the configured storage, vector store and backend.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/sway/api"
	"github.com/papercomputeco/sway/pkg/backend"
	"github.com/papercomputeco/sway/pkg/backend/local"
	"github.com/papercomputeco/sway/pkg/backend/remote"
	"github.com/papercomputeco/sway/pkg/blueprint"
	"github.com/papercomputeco/sway/pkg/config"
	"github.com/papercomputeco/sway/pkg/credentials"
	"github.com/papercomputeco/sway/pkg/eventstream"
	"github.com/papercomputeco/sway/pkg/eventstream/kafka"
	"github.com/papercomputeco/sway/pkg/eventstream/nop"
	"github.com/papercomputeco/sway/pkg/personalize"
	"github.com/papercomputeco/sway/pkg/session"
	"github.com/papercomputeco/sway/pkg/session/inmemory"
	"github.com/papercomputeco/sway/pkg/session/postgres"
	"github.com/papercomputeco/sway/pkg/session/sqlite"
	vectorutils "github.com/papercomputeco/sway/pkg/vector/utils"
	"github.com/papercomputeco/sway/pkg/worker"
)

const serveLongDesc string = `Run the sway API server.

The server registers the configured vector store with the personalization
backend, sketching it with a freshly trained quantizer when the backend does
not know it yet, then serves sessions, signals and batches over HTTP and MCP.

Every flag falls back to SWAY_ environment variables, then config.toml,
then the built-in defaults.

Examples:
  sway serve
  sway serve --storage postgres --postgres postgres://localhost:5432/sway
  sway serve --backend remote --api-key $SWAY_BACKEND_API_KEY`

const serveShortDesc string = "Run the sway API server"

type serveCommander struct {
	flags  serveFlags
	debug  bool
	logger *slog.Logger
}

// serveFlags hold the flag targets. Values are read back through viper so
// that env vars and config.toml apply.
type serveFlags struct {
	listen             string
	disableMCP         bool
	storageDriver      string
	sqlitePath         string
	postgresDSN        string
	vectorProvider     string
	vectorTarget       string
	vectorCollection   string
	vectorDims         uint
	vectorMetric       string
	backendMode        string
	backendURL         string
	backendAPIKey      string
	blueprintDir       string
	batchSize          uint
	quantizerTrainSize uint
	quantizerType      string
	enableHistory      bool
	eventsEnabled      bool
	eventsTopic        string
	logJSON            bool
	logFile            string
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			var err error
			v, err = config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.ServeFlags, config.ServeFlagKeys)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cfg := Settings(v)

			var closeLog func() error
			cmder.logger, closeLog, err = NewLogger(cfg.Log, cmder.debug)
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()

			configDir, _ := cmd.Flags().GetString("config-dir")
			if err := ResolveCredentials(cfg, configDir); err != nil {
				return err
			}
			return cmder.run(cmd.Context(), cfg)
		},
	}

	f := &cmder.flags
	fs := config.ServeFlags
	config.AddStringFlag(cmd, fs, config.FlagAPIListen, &f.listen)
	config.AddBoolFlag(cmd, fs, config.FlagDisableMCP, &f.disableMCP)
	config.AddStringFlag(cmd, fs, config.FlagStorageDriver, &f.storageDriver)
	config.AddStringFlag(cmd, fs, config.FlagSQLite, &f.sqlitePath)
	config.AddStringFlag(cmd, fs, config.FlagPostgres, &f.postgresDSN)
	config.AddStringFlag(cmd, fs, config.FlagVectorStoreProv, &f.vectorProvider)
	config.AddStringFlag(cmd, fs, config.FlagVectorStoreTgt, &f.vectorTarget)
	config.AddStringFlag(cmd, fs, config.FlagVectorCollection, &f.vectorCollection)
	config.AddUintFlag(cmd, fs, config.FlagVectorDims, &f.vectorDims)
	config.AddStringFlag(cmd, fs, config.FlagVectorMetric, &f.vectorMetric)
	config.AddStringFlag(cmd, fs, config.FlagBackendMode, &f.backendMode)
	config.AddStringFlag(cmd, fs, config.FlagBackendURL, &f.backendURL)
	config.AddStringFlag(cmd, fs, config.FlagBackendAPIKey, &f.backendAPIKey)
	config.AddStringFlag(cmd, fs, config.FlagBlueprintDir, &f.blueprintDir)
	config.AddUintFlag(cmd, fs, config.FlagBatchSize, &f.batchSize)
	config.AddUintFlag(cmd, fs, config.FlagQuantizerTrainSize, &f.quantizerTrainSize)
	config.AddStringFlag(cmd, fs, config.FlagQuantizerType, &f.quantizerType)
	config.AddBoolFlag(cmd, fs, config.FlagEnableHistory, &f.enableHistory)
	config.AddBoolFlag(cmd, fs, config.FlagEventsEnabled, &f.eventsEnabled)
	config.AddStringFlag(cmd, fs, config.FlagEventsTopic, &f.eventsTopic)
	config.AddBoolFlag(cmd, fs, config.FlagLogJSON, &f.logJSON)
	config.AddStringFlag(cmd, fs, config.FlagLogFile, &f.logFile)

	return cmd
}

// ResolveCredentials fills API keys missing from cfg from the environment or
// credentials.toml. Only keys the configured services need are looked up.
func ResolveCredentials(cfg *config.Config, configDir string) error {
	needRemote := cfg.Backend.Mode == "remote" && cfg.Backend.APIKey == ""
	needQdrant := cfg.VectorStore.Provider == "qdrant" && cfg.VectorStore.APIKey == ""
	if !needRemote && !needQdrant {
		return nil
	}

	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if needRemote {
		if cfg.Backend.APIKey, err = mgr.Resolve(credentials.Remote); err != nil {
			return err
		}
	}
	if needQdrant {
		if cfg.VectorStore.APIKey, err = mgr.Resolve(credentials.Qdrant); err != nil {
			return err
		}
	}
	return nil
}

// Settings reads the resolved configuration out of v.
func Settings(v *viper.Viper) *config.Config {
	return &config.Config{
		Version: v.GetInt("version"),
		API: config.APIConfig{
			Listen:     v.GetString("api.listen"),
			DisableMCP: v.GetBool("api.disable_mcp"),
		},
		Storage: config.StorageConfig{
			Driver:      v.GetString("storage.driver"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		VectorStore: config.VectorStoreConfig{
			Provider:   v.GetString("vector_store.provider"),
			Target:     v.GetString("vector_store.target"),
			APIKey:     v.GetString("vector_store.api_key"),
			Collection: v.GetString("vector_store.collection"),
			Dimensions: v.GetUint("vector_store.dimensions"),
			Metric:     v.GetString("vector_store.metric"),
		},
		Backend: config.BackendConfig{
			Mode:         v.GetString("backend.mode"),
			URL:          v.GetString("backend.url"),
			APIKey:       v.GetString("backend.api_key"),
			BlueprintDir: v.GetString("backend.blueprint_dir"),
		},
		Personalize: config.PersonalizeConfig{
			BatchSize:          v.GetUint("personalize.batch_size"),
			QuantizerTrainSize: v.GetUint("personalize.quantizer_train_size"),
			QuantizerType:      v.GetString("personalize.quantizer_type"),
			EnableHistory:      v.GetBool("personalize.enable_history"),
			EmbeddingLastN:     v.GetUint("personalize.embedding_last_n"),
		},
		Events: config.EventsConfig{
			Enabled: v.GetBool("events.enabled"),
			Brokers: v.GetStringSlice("events.brokers"),
			Topic:   v.GetString("events.topic"),
		},
		Log: config.LogConfig{
			JSON:   v.GetBool("log.json"),
			File:   v.GetString("log.file"),
			Source: v.GetBool("log.source"),
		},
	}
}

func (c *serveCommander) run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := Build(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	server, err := api.NewServer(api.Config{
		ListenAddr: cfg.API.Listen,
		DisableMCP: cfg.API.DisableMCP,
	}, svc.Personalizer, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		c.logger.Info("received signal, shutting down")
		return server.Shutdown()
	}
}

// Services are the long lived components behind the API server.
type Services struct {
	Personalizer *personalize.Personalizer

	closers []func() error
	cancel  context.CancelFunc
	logger  *slog.Logger
}

// Close stops the blueprint watcher, drains pending events and closes the
// stores, in reverse order of creation.
func (s *Services) Close() error {
	if s.cancel != nil {
		s.cancel()
	}

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build wires storage, the vector store, the backend, the event pipeline
// and the Personalizer from cfg. The vector store is registered under its
// collection name.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Services, error) {
	svc := &Services{logger: log}
	ok := false
	defer func() {
		if !ok {
			_ = svc.Close()
		}
	}()

	driver, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: cfg.VectorStore.Provider,
		Target:       cfg.VectorStore.Target,
		Collection:   cfg.VectorStore.Collection,
		APIKey:       cfg.VectorStore.APIKey,
		Dimensions:   cfg.VectorStore.Dimensions,
		Metric:       cfg.VectorStore.Metric,
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}
	svc.closers = append(svc.closers, driver.Close)

	cache, fetcher := newBlueprints(cfg.Backend.BlueprintDir)

	b, err := svc.newBackend(ctx, cfg, fetcher)
	if err != nil {
		return nil, err
	}
	if cache == nil {
		cache = blueprint.NewCache(b)
	}

	if dir := cfg.Backend.BlueprintDir; dir != "" && cfg.Backend.Mode != "remote" {
		watchCtx, cancel := context.WithCancel(ctx)
		svc.cancel = cancel
		watcher := blueprint.NewWatcher(dir, cache, log)
		go func() {
			if err := watcher.Run(watchCtx); err != nil {
				log.Error("blueprint watcher stopped", "dir", dir, "error", err)
			}
		}()
	}

	publisher, err := newPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}
	pool, err := worker.NewPool(&worker.Config{
		Publisher: publisher,
		Logger:    log,
	})
	if err != nil {
		_ = publisher.Close()
		return nil, err
	}
	svc.closers = append(svc.closers, pool.Close)

	p, err := personalize.New(personalize.Config{
		BatchSize:          int(cfg.Personalize.BatchSize),
		QuantizerTrainSize: int(cfg.Personalize.QuantizerTrainSize),
		QuantizerType:      cfg.Personalize.QuantizerType,
		EnableHistory:      cfg.Personalize.EnableHistory,
		EmbeddingLastN:     int(cfg.Personalize.EmbeddingLastN),
		Logger:             log,
	}, b,
		personalize.WithBlueprintCache(cache),
		personalize.WithEventPool(pool),
	)
	if err != nil {
		return nil, err
	}

	if err := p.AddVectorStore(ctx, cfg.VectorStore.Collection, driver); err != nil {
		return nil, fmt.Errorf("registering vector store: %w", err)
	}

	log.Info("personalizer ready",
		"backend", cfg.Backend.Mode,
		"storage", cfg.Storage.Driver,
		"vector_store", cfg.VectorStore.Provider,
		"vdb_id", cfg.VectorStore.Collection,
		"events", cfg.Events.Enabled,
	)

	svc.Personalizer = p
	ok = true
	return svc, nil
}

// newBlueprints returns a cache and fetcher over dir, or nils when no
// directory is configured.
func newBlueprints(dir string) (*blueprint.Cache, blueprint.CustomFetcher) {
	if dir == "" {
		return nil, nil
	}
	fetcher := blueprint.DirFetcher{Dir: dir}
	return blueprint.NewCache(fetcher), fetcher
}

func (s *Services) newBackend(ctx context.Context, cfg *config.Config, fetcher blueprint.CustomFetcher) (backend.Backend, error) {
	switch cfg.Backend.Mode {
	case "remote":
		s.logger.Info("using remote backend", "url", cfg.Backend.URL)
		return remote.New(ctx, remote.Config{
			APIKey:  cfg.Backend.APIKey,
			BaseURL: cfg.Backend.URL,
		}, s.logger)

	case "local", "":
		store, err := NewStore(ctx, cfg.Storage, s.logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, store.Close)
		return local.New(store, local.Config{
			LastN:      int(cfg.Personalize.EmbeddingLastN),
			Blueprints: fetcher,
		}, s.logger), nil

	default:
		return nil, fmt.Errorf("unsupported backend mode: %q (available: local, remote)", cfg.Backend.Mode)
	}
}

// NewStore opens the session store selected by c.
func NewStore(ctx context.Context, c config.StorageConfig, log *slog.Logger) (session.Store, error) {
	switch c.Driver {
	case "memory", "inmemory":
		log.Info("using in-memory session storage")
		return inmemory.NewDriver(), nil

	case "sqlite", "":
		path := c.SQLitePath
		if path == "" {
			path = ":memory:"
		}
		store, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite session store: %w", err)
		}
		log.Info("using SQLite session storage", "path", path)
		return store, nil

	case "postgres":
		if c.PostgresDSN == "" {
			return nil, errors.New("postgres session storage requires storage.postgres_dsn")
		}
		store, err := postgres.NewDriver(ctx, c.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL session store: %w", err)
		}
		log.Info("using PostgreSQL session storage")
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %q (available: memory, sqlite, postgres)", c.Driver)
	}
}

func newPublisher(c config.EventsConfig) (eventstream.Publisher, error) {
	if !c.Enabled {
		return nop.NewPublisher(), nil
	}
	pub, err := kafka.NewPublisher(kafka.Config{
		Brokers: c.Brokers,
		Topic:   c.Topic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating event publisher: %w", err)
	}
	return pub, nil
}
