package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"transitquery/internal/app"
	"transitquery/internal/appconf"
	"transitquery/internal/clock"
	"transitquery/internal/logging"
	"transitquery/internal/reply"
)

// clockEnvVar pins "now" for replaying queries.
const clockEnvVar = "TRANSITQUERY_NOW"

type rootOptions struct {
	configPath    string
	cacheDir      string
	networksDir   string
	allowInsecure bool
	logLevel      string
	timeout       time.Duration
	dump          bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "transitquery",
		Short:         "Query public transport journeys, departures and locations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&opts.cacheDir, "cache-dir", "", "location cache directory")
	flags.StringVar(&opts.networksDir, "networks-dir", "", "directory with additional network descriptors")
	flags.BoolVar(&opts.allowInsecure, "allow-insecure", false, "also query backends without TLS")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.DurationVar(&opts.timeout, "timeout", 0, "overall query timeout")
	flags.BoolVar(&opts.dump, "dump", false, "dump results with go-spew instead of JSON")

	cmd.AddCommand(
		newJourneyCmd(opts),
		newDepartureCmd(opts),
		newLocationCmd(opts),
		newCacheCmd(opts),
		newBackendsCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}

// config loads the configuration file and environment, then applies the
// flags that were set explicitly.
func (opts *rootOptions) config(cmd *cobra.Command) (appconf.Config, error) {
	cfg, err := appconf.Load(opts.configPath)
	if err != nil {
		return appconf.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("cache-dir") {
		cfg.CacheDir = opts.cacheDir
	}
	if flags.Changed("networks-dir") {
		cfg.NetworksDir = opts.networksDir
	}
	if flags.Changed("allow-insecure") {
		cfg.AllowInsecureBackends = opts.allowInsecure
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("timeout") {
		cfg.RequestTimeout = opts.timeout
	}

	if err := cfg.Validate(); err != nil {
		return appconf.Config{}, err
	}
	return cfg, nil
}

func (opts *rootOptions) application(cmd *cobra.Command) (*app.Application, error) {
	cfg, err := opts.config(cmd)
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.NewStructuredLogger(cmd.ErrOrStderr(), level)
	return app.New(cfg, logger, clock.NewEnvironmentClock(clockEnvVar, time.Local))
}

// queryContext bounds a query by the configured timeout.
func queryContext(cmd *cobra.Command, application *app.Application) (context.Context, context.CancelFunc) {
	if application.Config.RequestTimeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), application.Config.RequestTimeout)
}

func (opts *rootOptions) print(w io.Writer, v any) error {
	if opts.dump {
		spew.Fdump(w, v)
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type finishedReply[T any] interface {
	Wait(ctx context.Context) error
	Result() []T
	ErrorCode() reply.ErrorCode
	ErrorMessage() string
}

// printReply waits for r and prints its results. A reply that failed
// without any result is an error.
func printReply[T any](ctx context.Context, cmd *cobra.Command, opts *rootOptions, r finishedReply[T]) error {
	if err := r.Wait(ctx); err != nil {
		return fmt.Errorf("query did not finish: %w", err)
	}
	res := r.Result()
	if len(res) == 0 && r.ErrorCode() != reply.NoError {
		return fmt.Errorf("query failed: %s: %s", r.ErrorCode(), r.ErrorMessage())
	}
	return opts.print(cmd.OutOrStdout(), res)
}
