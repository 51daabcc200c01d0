package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/gmaxsoft/elasticsearch-project/internal/client"
	"github.com/gmaxsoft/elasticsearch-project/pkg/logger"
)

type rootOptions struct {
	apiURL   string
	logLevel string
	timeout  time.Duration
	jsonOut  bool
}

func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	return logger.NewWithWriter("searchctl", o.logLevel, cmd.ErrOrStderr())
}

func (o *rootOptions) backend(cmd *cobra.Command) *client.HTTPBackend {
	cfg := client.DefaultConfig(o.apiURL)
	cfg.HTTP.Timeout = o.timeout
	return client.NewHTTPBackend(cfg, o.logger(cmd))
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "searchctl",
		Short:         "Query and feed the product search service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.apiURL, "api", "http://localhost:8010", "Base URL of the search API")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Timeout for each API call")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Print raw JSON instead of text")

	cmd.AddCommand(
		newSearchCmd(opts),
		newSuggestCmd(opts),
		newImportCmd(opts),
		newPublishCmd(opts),
		newInteractiveCmd(opts),
	)
	return cmd
}
