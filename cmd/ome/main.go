package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ome/internal/config"
	"ome/internal/logging"
)

var (
	// Global flags
	verbose      bool
	taxonomyPath string
	rulesDir     string
	domain       string
	strategy     string
	quality      string
	strict       bool
	timeout      time.Duration

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ome",
	Short: "OME - Open Matching Engine",
	Long: `OME matches hardware manifests (what is to be built) against facility
descriptions (what a shop can do) through a four-layer pipeline:
direct string matching, domain rules, semantic similarity, and
optional LLM adjudication.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return logging.Initialize(logger, verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&taxonomyPath, "taxonomy", "data/taxonomy/processes.yaml", "process taxonomy YAML")
	rootCmd.PersistentFlags().StringVar(&rulesDir, "rules", "data/capability_rules", "capability rules directory")
	rootCmd.PersistentFlags().StringVar(&domain, "domain", "", "matching domain (default: detect from manifest, else manufacturing)")
	rootCmd.PersistentFlags().StringVar(&strategy, "strategy", "", "orchestration strategy: parallel|sequential|adaptive|cost_optimized")
	rootCmd.PersistentFlags().StringVar(&quality, "quality", "", "quality preset: hobby|professional|medical")
	rootCmd.PersistentFlags().BoolVar(&strict, "strict", false, "require every configured layer, including the LLM")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall request timeout")

	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(taxonomyCmd)
	rootCmd.AddCommand(rulesCmd)
}

// baseConfig folds the global flags into an engine config.
func baseConfig() (config.Config, error) {
	cfg := config.DefaultConfig()
	cfg.Debug = verbose
	cfg.RequestTimeout = timeout
	if domain != "" {
		cfg.Domain = domain
	}
	if strategy != "" {
		cfg.Strategy = config.Strategy(strategy)
	}
	if quality != "" {
		q, err := config.ParseQualityLevel(quality)
		if err != nil {
			return cfg, err
		}
		cfg.ApplyQualityLevel(q)
	}
	cfg.StrictMode = cfg.StrictMode || strict
	return cfg, cfg.Validate()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
