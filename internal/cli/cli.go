// Package cli implements the fleetaudit command-line interface.
//
// This package provides commands for running a portfolio analysis over a
// repository list, previewing error-tracking identity matches, and managing
// the API response cache. The CLI is built using cobra and supports verbose
// logging via the charmbracelet/log library.
//
// # Commands
//
// The main commands are:
//   - analyze: Run the full analysis pipeline over a repository list file
//   - projects: List error-tracking projects and preview identity matches
//   - cache: Manage the API response cache
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. Loggers are
// passed through context.Context to allow structured progress tracking.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/parkerhq/fleetaudit/pkg/buildinfo"
	"github.com/parkerhq/fleetaudit/pkg/cache"
	"github.com/parkerhq/fleetaudit/pkg/config"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "fleetaudit"

// Environment variables holding credentials.
const (
	envGitHubToken = "GITHUB_TOKEN"
	envSentryToken = "SENTRY_AUTH_TOKEN"
	envSentryOrg   = "SENTRY_ORG_SLUG"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
		}),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:          appName,
		Short:        "Fleetaudit correlates repository portfolios with vulnerabilities and error tracking",
		Long:         `Fleetaudit analyzes a portfolio of repositories: it extracts declared dependencies, correlates them against vulnerability advisories, matches each repository to its error-tracking project, and aggregates everything into per-repository and portfolio-level reports.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				c.SetLogLevel(log.DebugLevel)
			}
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(c.analyzeCommand())
	root.AddCommand(c.projectsCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// Execute runs the CLI and returns an error if any command fails.
func (c *CLI) Execute() error {
	return c.RootCommand().ExecuteContext(context.Background())
}

// =============================================================================
// Cache Factory
// =============================================================================

// newCache builds the cache backend named in the config.
func newCache(ctx context.Context, cfg *config.Config, noCache bool) (cache.Cache, error) {
	if noCache || cfg.Cache.Backend == config.CacheBackendNone {
		return cache.NewNullCache(), nil
	}
	if cfg.Cache.Backend == config.CacheBackendRedis {
		return cache.NewRedisCache(ctx, cfg.Cache.RedisAddr, os.Getenv("REDIS_PASSWORD"), 0)
	}
	return cache.NewFileCache(cfg.Cache.Dir)
}
