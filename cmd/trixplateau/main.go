package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jwtly10/trixplateau/internal/config"
	"github.com/jwtly10/trixplateau/internal/logging"
	"github.com/jwtly10/trixplateau/internal/metrics"
)

var version = "0.1.0"

// app carries the flags shared by every command and the config they resolve to.
type app struct {
	configPath  string
	envFile     string
	logLevel    string
	metricsAddr string
	workers     int
	outDir      string

	cfg     *config.Config
	metrics *http.Server
}

func main() {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "trixplateau",
		Short: "Plateau-based robustness research for the TRIX/WMA trend strategy",
		Long: `trixplateau evaluates every trigger/trend/shift triple of the TRIX/WMA
strategy, ranks parameter plateaus instead of single best cells, validates the
choice walk-forward and stress-tests it before issuing a GO/NO-GO verdict.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: a.teardown,
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Environment file with OANDA credentials and DEBUG_TOPICS")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides run.log_level)")
	rootCmd.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	rootCmd.PersistentFlags().IntVarP(&a.workers, "workers", "w", 0, "Parallel simulations (overrides run.workers, 0 = one per CPU)")
	rootCmd.PersistentFlags().StringVarP(&a.outDir, "out", "o", "", "Output directory (overrides run.output_dir)")

	rootCmd.AddCommand(a.runCmd())
	rootCmd.AddCommand(a.gridCmd())
	rootCmd.AddCommand(a.stressCmd())
	rootCmd.AddCommand(a.multiAssetCmd())
	rootCmd.AddCommand(a.fetchCmd())
	rootCmd.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("trixplateau version %s\n", version)
		},
	}
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", a.envFile, err)
	}

	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Run.LogLevel = a.logLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.Run.MetricsAddr = a.metricsAddr
	}
	if flags.Changed("workers") {
		cfg.Run.Workers = a.workers
	}
	if flags.Changed("out") {
		cfg.Run.OutputDir = a.outDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Configure(cfg.Run.LogLevel)
	if cfg.Run.MetricsAddr != "" {
		a.metrics = metrics.Serve(cfg.Run.MetricsAddr)
		slog.Info("Serving metrics", "addr", cfg.Run.MetricsAddr)
	}
	a.cfg = cfg
	return nil
}

func (a *app) teardown(*cobra.Command, []string) {
	if a.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.metrics.Shutdown(ctx)
}
