// Command convert turns the raw GeLaP dataset (per-house tar.xz archives of
// smart-meter and appliance CSVs) into a single SQLite store of canonical
// power tables plus the dataset metadata.
//
// Usage:
//
//	convert -config gelap.toml
//	convert -data-dir /data/gelap -out /data/gelap.db -houses 20 -appliances 10 -dedup
//
// Settings come from flags, then environment variables (a .env file is loaded
// when present), then the optional TOML file named by -config or CONFIG_FILE.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/gelap-etl/internal/adapter/archive"
	"github.com/couchcryptid/gelap-etl/internal/adapter/csvsource"
	httpadapter "github.com/couchcryptid/gelap-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/gelap-etl/internal/adapter/kafka"
	"github.com/couchcryptid/gelap-etl/internal/adapter/metadata"
	"github.com/couchcryptid/gelap-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/gelap-etl/internal/config"
	"github.com/couchcryptid/gelap-etl/internal/observability"
	"github.com/couchcryptid/gelap-etl/internal/pipeline"
)

// overrides holds the command-line flags; only flags given explicitly are applied.
type overrides struct {
	configPath  string
	dataDir     string
	output      string
	houses      int
	appliances  int
	skipExtract bool
	sortIndex   bool
	dedup       bool
}

func parseFlags() (*overrides, map[string]bool) {
	o := &overrides{}
	flag.StringVar(&o.configPath, "config", os.Getenv("CONFIG_FILE"), "optional TOML config file")
	flag.StringVar(&o.dataDir, "data-dir", "", "dataset root containing hh-NN.tar.xz archives")
	flag.StringVar(&o.output, "out", "", "output store path (replaced if it exists)")
	flag.IntVar(&o.houses, "houses", 0, "number of houses")
	flag.IntVar(&o.appliances, "appliances", 0, "number of appliances per house")
	flag.BoolVar(&o.skipExtract, "skip-extract", false, "reuse already extracted house directories")
	flag.BoolVar(&o.sortIndex, "sort", true, "sort every table by timestamp")
	flag.BoolVar(&o.dedup, "dedup", false, "drop rows with a repeated timestamp, keeping the first")
	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return o, set
}

func (o *overrides) apply(cfg *config.Config, set map[string]bool) {
	if set["data-dir"] {
		cfg.DataDir = o.dataDir
	}
	if set["out"] {
		cfg.OutputPath = o.output
	}
	if set["houses"] {
		cfg.HouseCount = o.houses
	}
	if set["appliances"] {
		cfg.ApplianceCount = o.appliances
	}
	if set["skip-extract"] {
		cfg.SkipExtract = o.skipExtract
	}
	if set["sort"] {
		cfg.SortIndex = o.sortIndex
	}
	if set["dedup"] {
		cfg.DropDuplicates = o.dedup
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	flags, set := parseFlags()
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	flags.apply(cfg, set)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	normalize, err := cfg.NormalizeOptions()
	if err != nil {
		logger.Error("invalid normalization settings", "error", err)
		os.Exit(1)
	}

	stages := pipeline.Stages{
		Extractor: archive.NewExtractor(logger),
		Reader:    csvsource.NewReader(cfg.ApplianceTimestampColumn, cfg.ApplianceValueColumn),
		OpenStore: createStore,
		Metadata:  metadata.NewAttacher(cfg.MetadataDir, logger),
	}

	// Table notifications are feature-flagged via KAFKA_BROKERS.
	var notifier *kafkaadapter.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		notifier = kafkaadapter.NewNotifier(cfg, logger)
		stages.Notifier = notifier
		logger.Info("kafka table notifications enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	p := pipeline.New(pipeline.Settings{
		DataDir:     cfg.DataDir,
		OutputPath:  cfg.OutputPath,
		Dataset:     cfg.Dataset(),
		SkipExtract: cfg.SkipExtract,
		Normalize:   normalize,
	}, stages, logger, metrics)

	var srv *httpadapter.Server
	if cfg.MetricsAddr != "" {
		srv = httpadapter.NewServer(cfg.MetricsAddr, p, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("converting GeLaP",
		"data_dir", cfg.DataDir,
		"output", cfg.OutputPath,
		"houses", cfg.HouseCount,
		"appliances", cfg.ApplianceCount,
		"skip_extract", cfg.SkipExtract,
		"sort", cfg.SortIndex,
		"dedup", cfg.DropDuplicates,
	)
	_, runErr := p.Run(ctx)
	if runErr != nil {
		logger.Error("conversion failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}
	if notifier != nil {
		if err := notifier.Close(); err != nil {
			logger.Error("kafka notifier close error", "error", err)
		}
	}

	if runErr != nil {
		os.Exit(1)
	}
}

func createStore(ctx context.Context, path string) (pipeline.Store, error) {
	s, err := sqlite.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	return s, nil
}
