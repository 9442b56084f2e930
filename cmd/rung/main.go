package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rungchat/internal/config"
	"rungchat/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	backendURL  string
	downloadDir string
	noHistory   bool
	timeout     time.Duration

	// Loaded by PersistentPreRunE
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rung",
	Short: "rung - ladder logic assistant client",
	Long: `rung talks to a ladder logic assistant backend.

Ask for rungs in plain language, attach Excel plans or L5X files, pick from
the options the assistant offers, and save generated code as .L5X files.

Run without arguments to start the interactive chat interface.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyFlagOverrides(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		if err := logging.Initialize(cfg.Logging.Options()); err != nil {
			logger.Warn("category logging disabled", zap.Error(err))
		}
		logging.Boot("rung %s starting, backend %s", cfg.Version, cfg.Backend.BaseURL)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath(), "Config file")
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", "", "Backend base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&downloadDir, "download-dir", "", "Directory for saved artifacts (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&noHistory, "no-history", false, "Do not record the conversation")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Operation timeout for one-shot commands")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(uploadDocCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyFlagOverrides lets explicit flags win over file and environment.
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("backend") {
		c.Backend.BaseURL = backendURL
	}
	if flags.Changed("download-dir") {
		c.Downloads.Dir = downloadDir
	}
	if noHistory {
		c.History.Enabled = false
	}
	if verbose {
		c.Logging.DebugMode = true
		c.Logging.Level = "debug"
	}
}

// commandContext returns a context bounded by --timeout and cancelled on
// SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
