package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"fandom-vis/internal/components/telemetry"
	"fandom-vis/internal/config"
	"fandom-vis/internal/index"
	"fandom-vis/internal/index/elastic"
	"fandom-vis/internal/index/sqlite"
	"fandom-vis/pkg/serviceutil"

	"github.com/spf13/cobra"
)

var (
	configPath       string
	backendFlag      string
	elasticsearchUrl string
	dbPath           string
	indexName        string
	verbose          bool
	enableTelemetry  bool
)

var (
	cfg     config.Config
	tel     telemetry.API = telemetry.NewSlogAPI()
	otelSdk *telemetry.Telemetry
)

var rootCmd = &cobra.Command{
	Use:   "fandomvis",
	Short: "fandomvis scrapes archive search results into an index and visualizes relationship tags.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(verbose)

		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		flags := cmd.Flags()
		if flags.Changed("backend") {
			loaded.Backend = backendFlag
		}
		if flags.Changed("elasticsearch") {
			loaded.Elasticsearch = elasticsearchUrl
		}
		if flags.Changed("db") {
			loaded.Db = dbPath
		}
		if flags.Changed("index-name") {
			loaded.IndexName = indexName
		}
		err = loaded.ValidateBackend()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		cfg = loaded

		if enableTelemetry {
			setupTelemetry(cmd.Context())
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if otelSdk == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := otelSdk.Shutdown(ctx)
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	},
}

func setupTelemetry(ctx context.Context) {
	t, err := telemetry.SetupFromEnv(ctx, "fandomvis")
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("telemetry was enabled but no telemetry.json5 was found, continuing without it")
		return
	}
	if err != nil {
		slog.Warn("failed to setup telemetry, continuing without it", "err", err)
		return
	}
	otelSdk = &t
	telemetry.InstrumentPerfStats(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "path to a config file (default: fandomvis.json5 searched upwards from the working directory)")
	flags.StringVar(&backendFlag, "backend", config.BACKEND_ELASTICSEARCH, "index backend: elasticsearch or sqlite")
	flags.StringVar(&elasticsearchUrl, "elasticsearch", "", "url of the elasticsearch cluster")
	flags.StringVar(&dbPath, "db", "", "sqlite database file or libsql url")
	flags.StringVar(&indexName, "index-name", index.DEFAULT_NAME, "name of the elasticsearch index")
	flags.BoolVarP(&verbose, "verbose", "v", false, "show debug output")
	flags.BoolVar(&enableTelemetry, "telemetry", false, "export traces and metrics as configured in telemetry.json5")
}

// openIndex connects to the backend selected by the config.
func openIndex() (index.Index, error) {
	switch cfg.Backend {
	case config.BACKEND_SQLITE:
		return sqlite.Open(cfg.Db, tel)
	case config.BACKEND_ELASTICSEARCH:
		return elastic.New(elastic.Options{
			Endpoint: cfg.Elasticsearch,
			Name:     cfg.IndexName,
		}, tel), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func mustOpenIndex() index.Index {
	idx, err := openIndex()
	if err != nil {
		serviceutil.Fatal("failed to open index", err)
	}
	return idx
}

func Execute() {
	ctx := serviceutil.SignalContext()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
