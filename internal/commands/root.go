// Package commands implements the azrepos command-line interface.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/gaborage/azrepos/config"
	"github.com/gaborage/azrepos/httpclient"
	"github.com/gaborage/azrepos/logger"
	"github.com/gaborage/azrepos/observability"
	"github.com/gaborage/azrepos/repos"
)

const shutdownTimeout = 5 * time.Second

// GlobalOptions holds flags shared by every resource command
type GlobalOptions struct {
	ConfigFile string
	LogLevel   string
	Retries    int
}

// NewRootCommand assembles the full command tree
func NewRootCommand(version string) *cobra.Command {
	opts := &GlobalOptions{Retries: -1}

	root := &cobra.Command{
		Use:   "azrepos",
		Short: "Work with Azure DevOps Git repositories and pull requests",
		Long: `Command-line client for the Azure DevOps Git REST API.

Connection settings are read from azrepos.yaml (or --config) and
AZREPOS_* environment variables, e.g. AZREPOS_AZURE_TOKEN.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Override log.level")
	root.PersistentFlags().IntVar(&opts.Retries, "retries", -1, "Override client.retry.count")

	root.AddCommand(
		newRepoCommand(opts),
		newPullRequestCommand(opts),
		newLabelCommand(opts),
		newCommentCommand(opts),
		newFileCommand(opts),
		NewVersionCommand(version),
	)
	return root
}

// session is everything a resource command needs, built from config.
type session struct {
	client   *repos.Client
	log      logger.Logger
	provider observability.Provider
}

func newSession(opts *GlobalOptions, stderr io.Writer) (*session, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigFile != "" {
		cfg, err = config.LoadFile(opts.ConfigFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.Retries >= 0 {
		cfg.Client.Retry.Count = opts.Retries
	}

	log := logger.NewWithWriter(stderr, cfg.Log.Level, cfg.Log.Pretty, nil)

	var obsCfg observability.Config
	if err := cfg.Unmarshal("observability", &obsCfg); err != nil {
		return nil, fmt.Errorf("failed to read observability config: %w", err)
	}
	provider, err := observability.NewProvider(&obsCfg)
	if err != nil {
		return nil, err
	}

	exec := httpclient.NewBuilder(log).
		WithTimeout(cfg.Client.Timeout).
		WithRetryDelay(cfg.Client.Retry.Delay).
		WithLogPayloads(cfg.Client.Log.Payloads, cfg.Client.Log.MaxBytes).
		WithRateLimit(cfg.Client.RateLimit.RPS, cfg.Client.RateLimit.Burst).
		WithTracerProvider(provider.TracerProvider()).
		Build()

	client, err := repos.NewFromConfig(exec, cfg)
	if err != nil {
		_ = observability.Shutdown(provider, shutdownTimeout)
		return nil, err
	}
	return &session{client: client, log: log, provider: provider}, nil
}

func (s *session) close() {
	if err := observability.Shutdown(s.provider, shutdownTimeout); err != nil {
		s.log.Warn().Err(err).Msg("observability shutdown failed")
	}
}

// runWith builds a session and runs fn with the command's output writer.
func runWith(opts *GlobalOptions, fn func(ctx context.Context, c *repos.Client, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := newSession(opts, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer s.close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return fn(ctx, s.client, cmd.OutOrStdout(), args)
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid pull request id %q", arg)
	}
	return id, nil
}
