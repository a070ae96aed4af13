package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	"github.com/ministore/recordstore/internal/config"
	"github.com/ministore/recordstore/internal/logging"
	"github.com/ministore/recordstore/recordstore"
	"github.com/ministore/recordstore/recordstore/storage"
	"github.com/ministore/recordstore/recordstore/storage/postgres"
	"github.com/ministore/recordstore/recordstore/storage/sqlite"
)

var version = "dev"

// app carries what the subcommands share: the viper instance their flags
// are bound to and the configuration file path.
type app struct {
	v          *viper.Viper
	configFile string
}

// NewRootCommand builds the recordstore command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: config.NewViper()}
	defaults := a.defaults()

	root := &cobra.Command{
		Use:           "recordstore",
		Short:         "Collections of records queried with filter expressions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "YAML configuration file")
	flags.String("log-level", defaults.Log.Level, "log level: debug|info|warn|error")
	flags.String("log-format", defaults.Log.Format, "log format: console|json")
	flags.String("backend", defaults.Storage.Backend, "storage backend: sqlite|postgres")
	flags.String("sqlite-driver", defaults.Storage.Driver, "sqlite driver: sqlite (modernc) or sqlite3 (mattn)")
	flags.String("sqlite-path", defaults.Storage.SQLitePath, "sqlite database file")
	flags.String("postgres-dsn", "", "postgres connection string")
	flags.String("postgres-schema", defaults.Storage.PostgresSchema, "postgres schema holding the collections")

	a.bind(root, map[string]string{
		"log.level":               "log-level",
		"log.format":              "log-format",
		"storage.backend":         "backend",
		"storage.driver":          "sqlite-driver",
		"storage.sqlite-path":     "sqlite-path",
		"storage.postgres-dsn":    "postgres-dsn",
		"storage.postgres-schema": "postgres-schema",
	}, true)

	root.AddCommand(
		newServeCommand(a),
		newCompileCommand(),
		newCollectionsCommand(a),
		newRecordsCommand(a),
		newTokenCommand(a),
	)
	return root
}

// Execute runs the CLI and returns an exit code.
func Execute(ctx context.Context, argv []string) int {
	root := NewRootCommand()
	root.SetArgs(argv)
	if err := root.ExecuteContext(ctx); err != nil {
		printError(root.ErrOrStderr(), err)
		return 1
	}
	return 0
}

func (a *app) defaults() *config.Configuration {
	return config.NewConfigurationWithOptionsAndDefaults()
}

func (a *app) bind(cmd *cobra.Command, keys map[string]string, persistent bool) {
	fs := cmd.Flags()
	if persistent {
		fs = cmd.PersistentFlags()
	}
	for key, name := range keys {
		_ = a.v.BindPFlag(key, fs.Lookup(name))
	}
}

// load reads the configuration and installs the global logger.
func (a *app) load(cmd *cobra.Command) (*config.Configuration, func(), error) {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return nil, nil, err
	}
	restore, err := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, restore, nil
}

func newAdapter(cfg config.Storage) storage.Adapter {
	if cfg.Backend == string(storage.BackendPostgres) {
		return postgres.New(cfg.PostgresDSN, cfg.PostgresSchema)
	}
	return sqlite.NewWithDriver(cfg.SQLitePath, cfg.Driver)
}

func openStore(ctx context.Context, cfg *config.Configuration, tracer trace.Tracer) (*recordstore.Store, error) {
	return recordstore.Open(ctx, newAdapter(cfg.Storage), recordstore.StoreOptions{
		Now:          time.Now,
		MaxExprLimit: cfg.Search.MaxExprLimit,
		Tracer:       tracer,
	})
}
