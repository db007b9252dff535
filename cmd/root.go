package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/cwbudde/annealcycle/internal/config"
	"github.com/cwbudde/annealcycle/internal/logging"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	cfg       *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "annealcycle",
	Short: "Approximate shortest Hamiltonian cycles by simulated annealing",
	Long: `annealcycle searches a directed, weighted graph for a short cycle that
visits every vertex exactly once. It runs single searches from the command
line, or serves search jobs over HTTP with progress streaming and
checkpoints.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			loaded.Log.Format = logFormat
		}
		cfg = loaded

		closer, err := logging.Setup(cfg.Log)
		if err != nil {
			return err
		}
		logCloser = closer
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: annealcycle.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json, logfmt)")
}
