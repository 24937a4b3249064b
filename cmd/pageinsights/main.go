package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/PageInsights/internal/config"
	"github.com/TobiSchelling/PageInsights/internal/database"
	"github.com/TobiSchelling/PageInsights/internal/llm"
	"github.com/TobiSchelling/PageInsights/internal/metrics"
	"github.com/TobiSchelling/PageInsights/internal/pipeline"
	"github.com/TobiSchelling/PageInsights/internal/report"
	"github.com/TobiSchelling/PageInsights/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     = zap.NewNop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "pageinsights",
	Short:   "Pageview export statistics and editorial insights",
	Long:    "PageInsights aggregates pageview CSV exports into writer, section and referrer statistics and turns them into editorial narratives.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		switch {
		case err == nil:
			cfg, err = config.Load(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
		case configPath != "":
			return err
		default:
			cfg = config.Default()
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger, err = newLogger(level, cfg.Logging.Format)
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		logger.Debug("config loaded", zap.String("path", path))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runsCmd)
}

// newLogger builds a zap logger from the logging config.
func newLogger(level, format string) (*zap.Logger, error) {
	var zc zap.Config
	if format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}

	switch level {
	case "debug":
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zc.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zc.Build()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("pageinsights", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/pageinsights/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to choose the text generation provider and popular sections.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provider and history status",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := llm.ParseKind(cfg.LLM.Provider)
		settings := cfg.ProviderSettings(kind)
		provider, err := llm.CreateProvider(settings, logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		fmt.Println(styleHeading.Render("Text generation"))
		fmt.Printf("  Provider: %s\n", provider.Name())
		fmt.Printf("  Models: %s\n", strings.Join(provider.Models, ", "))
		fmt.Printf("  Timeout: %s\n", cfg.Timeout())
		if provider.IsConfigured(ctx) {
			fmt.Printf("  Status: %s\n", styleOK.Render("ready"))
		} else {
			fmt.Printf("  Status: %s\n", styleError.Render("not available"))
		}

		fmt.Println()
		fmt.Println(styleHeading.Render("History"))
		if !cfg.History.Enabled {
			fmt.Println("  Disabled")
			return nil
		}
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		fmt.Printf("  Database: %s\n", db.Path())
		fmt.Printf("  Runs: %d (%d failed)\n", stats.TotalRuns, stats.FailedRuns)
		fmt.Printf("  Rated: %d (%d useful)\n", stats.Rated, stats.Useful)
		for _, mode := range sortedKeys(stats.ByMode) {
			fmt.Printf("    %s: %d\n", mode, stats.ByMode[mode])
		}
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and history pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		m := metrics.New("pageinsights")
		srv, err := server.New(server.Options{
			Pipeline:       newPipeline(db, m),
			History:        db,
			Metrics:        m,
			Logger:         logger,
			CORSOrigins:    cfg.Server.CORSOrigins,
			MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
			RateLimit:      server.RateLimit{RPS: cfg.Server.RateLimit.RPS, Burst: cfg.Server.RateLimit.Burst},
		})
		if err != nil {
			return err
		}

		port := cfg.Server.Port
		if servePort > 0 {
			port = servePort
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return srv.ListenAndServe(ctx, fmt.Sprintf("127.0.0.1:%d", port))
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

// openHistory opens the run history database, or returns nil when history
// is disabled.
func openHistory() (*database.DB, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	return database.Open(cfg.HistoryPath(), logger)
}

func reportOptions() report.Options {
	return report.Options{
		TopN:        cfg.Analysis.TopN,
		Popular:     cfg.Analysis.PopularSections,
		MinArticles: cfg.Analysis.MinRatioArticles,
	}
}

func newPipeline(db *database.DB, m *metrics.Metrics) *pipeline.Pipeline {
	kind, _ := llm.ParseKind(cfg.LLM.Provider)
	return pipeline.New(pipeline.Options{
		Report: reportOptions(),
		Providers: func(k llm.Kind) (llm.Provider, error) {
			c, err := llm.CreateProvider(cfg.ProviderSettings(k), logger)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Default:     kind,
		Concurrency: cfg.LLM.Concurrency,
		History:     db,
		Metrics:     m,
		Logger:      logger,
	})
}

// readInputs loads each CSV argument. "-" reads standard input.
func readInputs(args []string, labels []string) ([]pipeline.Input, error) {
	if len(args) == 0 {
		return nil, errors.New("no CSV files given")
	}
	if len(labels) > 0 && len(labels) != len(args) {
		return nil, fmt.Errorf("got %d labels for %d files", len(labels), len(args))
	}

	inputs := make([]pipeline.Input, len(args))
	for i, arg := range args {
		var data []byte
		var err error
		if arg == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(arg)
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", arg, err)
		}

		label := strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
		if arg == "-" {
			label = "stdin"
		}
		if len(labels) > 0 {
			label = labels[i]
		}
		inputs[i] = pipeline.Input{Label: label, Text: string(data)}
	}
	return inputs, nil
}
