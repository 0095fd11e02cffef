package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/inbox-triage/internal/config"
	"github.com/mikey/inbox-triage/internal/di"
	"github.com/spf13/cobra"
	"go.uber.org/dig"
)

// Version is set via ldflags at build time
var Version = "dev"

var (
	configFile string
	verbose    bool
	jsonOutput bool
	container  *dig.Container
)

var rootCmd = &cobra.Command{
	Use:           "inbox-triage",
	Short:         "Sort a mailbox into opportunities and operations",
	Long:          "inbox-triage pulls recent mail through the Gmail API, classifies every message into an opportunity or operation lane and keeps the verdicts for review.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var cfg *config.Config
		var err error
		if configFile != "" {
			cfg, err = config.NewFromFile(configFile)
		} else {
			cfg, err = config.New()
		}
		if err != nil {
			return err
		}
		if verbose {
			cfg.Set("logging.level", "debug")
		}

		container, err = di.BuildContainer(cfg)
		if err != nil {
			return fmt.Errorf("failed to build dependency container: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeContainer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "inbox-triage version %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print machine-readable JSON")

	rootCmd.AddCommand(versionCmd)
}

func closeContainer() error {
	if container == nil {
		return nil
	}
	err := container.Invoke(func(closers *di.Closers) error {
		return closers.Close()
	})
	container = nil
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		closeContainer()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
