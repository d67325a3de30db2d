// Package commands implements the squidctl command line.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	squid "github.com/squidcloud/squid-go"
	"github.com/squidcloud/squid-go/pkg/config"
	"github.com/squidcloud/squid-go/pkg/logger"
	"github.com/squidcloud/squid-go/pkg/surreal"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	cfg       *config.Config
	log       logger.Logger
	logCloser io.Closer
	provider  *squid.Provider

	// factory builds the clients every command talks to.
	factory = func(log logger.Logger) squid.Factory {
		return surreal.FactoryWith(surreal.WithLogger(log))
	}
)

var rootCmd = &cobra.Command{
	Use:   "squidctl",
	Short: "Follow, page and chat with a realtime backend",
	Long: `squidctl drives the squid bindings from a terminal.

Watch a query as it changes, page through a collection, produce to and
consume from queues, chat with an AI agent, or serve collections over
HTTP with a live WebSocket continuation.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// Execute runs the command line until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./squid.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, text)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(pageCmd)
	rootCmd.AddCommand(produceCmd)
	rootCmd.AddCommand(consumeCmd)
	rootCmd.AddCommand(chatCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	var err error
	if cfg, err = config.Load(cfgFile); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if log, logCloser, err = cfg.Logging.Logger(cmd.ErrOrStderr()); err != nil {
		return err
	}
	provider = squid.NewProvider(factory(log), squid.WithProviderLogger(log))
	return nil
}

func teardown(cmd *cobra.Command, _ []string) error {
	err := provider.Close(context.WithoutCancel(cmd.Context()))
	if cerr := logCloser.Close(); err == nil {
		err = cerr
	}
	return err
}
