package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dray-io/droplife/internal/config"
	"github.com/dray-io/droplife/internal/drop"
	"github.com/dray-io/droplife/internal/lifecycle"
	"github.com/dray-io/droplife/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	// Handle version flag before subcommand parsing
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		fmt.Printf("droplifed version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	subcommand := os.Args[1]
	switch subcommand {
	case "run":
		runDaemon(os.Args[2:])
	case "simulate":
		runSimulate(os.Args[2:])
	case "version":
		fmt.Printf("droplifed version %s (built %s, commit %s)\n", version, buildTime, gitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: droplifed <command> [options]

Commands:
  run         Start the lifecycle manager daemon
  simulate    Run a synthetic drop workload against the manager
  version     Print version information

Run 'droplifed <command> --help' for more information on a command.`)
}

// commonFlags are shared by run and simulate.
type commonFlags struct {
	configPath    *string
	metricsAddr   *string
	backend       *string
	checkPeriod   *time.Duration
	cleanupPeriod *time.Duration
}

func registerCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath:    fs.String("config", "", "Path to configuration file"),
		metricsAddr:   fs.String("metrics-addr", "", "Override metrics endpoint address (e.g., :9090)"),
		backend:       fs.String("backend", "", "Override storage backend (file, memory, s3)"),
		checkPeriod:   fs.Duration("check-period", 0, "Override the sweep period"),
		cleanupPeriod: fs.Duration("cleanup-period", -1, "Override the delay between expiry and deletion"),
	}
}

// load reads the configuration and applies CLI overrides.
func (f commonFlags) load() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if *f.configPath != "" {
		cfg, err = config.LoadFromPath(*f.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if *f.metricsAddr != "" {
		cfg.Observability.MetricsAddr = *f.metricsAddr
	}
	if *f.backend != "" {
		cfg.Storage.Backend = *f.backend
	}
	if *f.checkPeriod > 0 {
		cfg.Lifecycle.CheckPeriod = *f.checkPeriod
	}
	if *f.cleanupPeriod >= 0 {
		cfg.Lifecycle.CleanupPeriod = *f.cleanupPeriod
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.Configure(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
}

func runDaemon(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	flags := registerCommonFlags(fs)

	fs.Usage = func() {
		fmt.Println(`Usage: droplifed run [options]

Start the lifecycle manager. It sweeps registered drops for lost copies,
expires them once their lifespan ends and deletes them after the cleanup
period.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := flags.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)

	daemon, err := NewDaemon(DaemonOptions{
		Config:  cfg,
		Logger:  logger,
		Version: version,
	})
	if err != nil {
		logger.Errorf("failed to create daemon", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := daemon.Start(ctx); err != nil {
		logger.Errorf("failed to start daemon", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("received shutdown signal")

	logger.Info("initiating graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := daemon.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	logger.Info("daemon shutdown complete")
}

func runSimulate(args []string) {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	flags := registerCommonFlags(fs)
	numDrops := fs.Int("drops", 10, "Number of drops to create")
	size := fs.Int64("size", 64*1024, "Bytes written to each drop")
	chunk := fs.Int("chunk", 4096, "Write size in bytes")
	preciousEvery := fs.Int("precious-every", 2, "Mark every Nth drop precious (0 disables)")
	lifespan := fs.Duration("lifespan", 2*time.Second, "Lifespan of each drop")
	writeTimeout := fs.Duration("write-timeout", 30*time.Second, "Time allowed for all drops to complete")
	duration := fs.Duration("duration", 30*time.Second, "Time allowed for the sweeps to delete every drop")

	fs.Usage = func() {
		fmt.Println(`Usage: droplifed simulate [options]

Create drops, write them to completion and run the lifecycle manager until
every drop is expired and deleted. Defaults to the memory backend and a
one second sweep period.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *flags.backend == "" && *flags.configPath == "" && os.Getenv(config.EnvConfigPath) == "" {
		*flags.backend = config.BackendMemory
	}
	if *flags.checkPeriod == 0 {
		*flags.checkPeriod = time.Second
	}

	cfg, err := flags.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)

	daemon, err := NewDaemon(DaemonOptions{Config: cfg, Logger: logger, Version: version})
	if err != nil {
		logger.Errorf("failed to create daemon", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := daemon.Start(ctx); err != nil {
		logger.Errorf("failed to start daemon", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	stats, simErr := simulate(ctx, daemon, simulation{
		Drops:         *numDrops,
		Size:          *size,
		ChunkSize:     *chunk,
		PreciousEvery: *preciousEvery,
		Lifespan:      *lifespan,
		WriteTimeout:  *writeTimeout,
		Duration:      *duration,
	})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := daemon.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error", map[string]any{"error": err.Error()})
	}

	printStats(os.Stdout, stats)
	if simErr != nil {
		logger.Errorf("simulation failed", map[string]any{"error": simErr.Error()})
		os.Exit(1)
	}
}

func printStats(w io.Writer, stats lifecycle.Stats) {
	fmt.Fprintf(w, "registered: %d\n", stats.Registered)
	for _, s := range drop.Statuses() {
		if n := stats.ByStatus[s]; n > 0 {
			fmt.Fprintf(w, "  status %-11s %d\n", s, n)
		}
	}
	for _, p := range drop.Phases() {
		if n := stats.ByPhase[p]; n > 0 {
			fmt.Fprintf(w, "  phase  %-11s %d\n", p, n)
		}
	}
}
