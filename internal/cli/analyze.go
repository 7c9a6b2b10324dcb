package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/parkerhq/fleetaudit/pkg/advisory"
	"github.com/parkerhq/fleetaudit/pkg/cache"
	"github.com/parkerhq/fleetaudit/pkg/config"
	"github.com/parkerhq/fleetaudit/pkg/hosting"
	"github.com/parkerhq/fleetaudit/pkg/integrations/osv"
	"github.com/parkerhq/fleetaudit/pkg/integrations/sentry"
	"github.com/parkerhq/fleetaudit/pkg/metrics"
	"github.com/parkerhq/fleetaudit/pkg/pipeline"
	"github.com/parkerhq/fleetaudit/pkg/report"
	"github.com/parkerhq/fleetaudit/pkg/tracker"
)

// analyzeCommand creates the analyze command.
func (c *CLI) analyzeCommand() *cobra.Command {
	var (
		configPath  string
		outputDir   string
		org         string
		windowDays  int
		concurrency int
		noCache     bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <repo-list-file>",
		Short: "Run the full analysis pipeline over a repository list",
		Long: `Analyze reads a repository list file (one repository per line, as a URL
or "owner/name", with an optional local checkout path), runs the full
pipeline, and writes JSON artifacts plus a human-readable summary.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			if org != "" {
				cfg.Tracker.Org = org
			}
			if cfg.Tracker.Org == "" {
				cfg.Tracker.Org = os.Getenv(envSentryOrg)
			}
			if windowDays > 0 {
				cfg.Analysis.WindowDays = windowDays
			}
			if concurrency > 0 {
				cfg.Analysis.Concurrency = concurrency
			}
			if outputDir != "" {
				cfg.Analysis.OutputDir = outputDir
			}

			repos, err := pipeline.LoadRepoList(args[0])
			if err != nil {
				return err
			}

			store, err := newCache(ctx, cfg, noCache)
			if err != nil {
				return err
			}
			defer store.Close()

			runner, err := buildRunner(c, cfg, store)
			if err != nil {
				return err
			}

			prog := newProgress(logger)
			result, err := runner.Run(ctx, repos, pipeline.Options{
				TrackerOrg:  cfg.Tracker.Org,
				WindowDays:  cfg.Analysis.WindowDays,
				Concurrency: cfg.Analysis.Concurrency,
				Logger:      logger,
			})
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Analyzed %d repositories", len(result.Repositories)))

			dir, err := writeArtifacts(cfg.Analysis.OutputDir, result)
			if err != nil {
				return err
			}

			printRunSummary(result)
			printSuccess("Artifacts written")
			printDetail("Directory: %s", dir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "artifact output directory")
	cmd.Flags().StringVar(&org, "org", "", "error-tracking organization slug")
	cmd.Flags().IntVar(&windowDays, "window", 0, "trailing activity window in days")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "worker pool size")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the response cache")

	return cmd
}

// buildRunner wires the pipeline collaborators from config and environment.
func buildRunner(c *CLI, cfg *config.Config, store cache.Cache) (*pipeline.Runner, error) {
	ttl := cfg.Cache.TTL()

	gateway, err := hosting.NewGitHubGateway(os.Getenv(envGitHubToken), store)
	if err != nil {
		return nil, err
	}
	gateway.WithCacheTTL(ttl)

	// Without a token the error-tracking integration is disabled and its
	// sections come back unavailable.
	var tc tracker.Client
	if token := os.Getenv(envSentryToken); token != "" && cfg.Tracker.Org != "" {
		sc := sentry.NewClient(store, token)
		if cfg.Tracker.BaseURL != "" {
			sc = sentry.NewClientWithBaseURL(store, token, cfg.Tracker.BaseURL)
		}
		tc = sc.WithCacheTTL(ttl)
	}

	oc := osv.NewClient(store)
	if cfg.Advisory.BaseURL != "" {
		oc = osv.NewClientWithBaseURL(store, cfg.Advisory.BaseURL)
	}
	source := oc.WithCacheTTL(ttl)
	correlator := advisory.NewCorrelator(source, advisory.CorrelatorOptions{
		BatchSize: cfg.Advisory.BatchSize,
		Logger:    c.Logger,
	})

	sccRunner := metrics.NewSCCRunner()
	if cfg.Metrics.Binary != "" {
		sccRunner.Binary = cfg.Metrics.Binary
	}

	return pipeline.NewRunner(gateway, tc, correlator, sccRunner, c.Logger), nil
}

// writeArtifacts persists the run results as JSON under dir/<run-id>/ and
// returns the run directory.
func writeArtifacts(dir string, result *pipeline.Result) (string, error) {
	runDir := filepath.Join(dir, result.RunID)
	if err := os.MkdirAll(filepath.Join(runDir, "repos"), 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "run.json"), result); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "portfolio.json"), result.Portfolio); err != nil {
		return "", err
	}
	for _, res := range result.Repositories {
		name := res.Repository.Owner + "-" + res.Repository.Name + ".json"
		if err := writeJSON(filepath.Join(runDir, "repos", name), res); err != nil {
			return "", err
		}
	}
	return runDir, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// printRunSummary renders the per-repository table and portfolio footer.
func printRunSummary(result *pipeline.Result) {
	headers := []string{"Repository", "Deps", "Definite", "Potential", "Identity", "Issues", "Lines", "State"}
	rows := make([][]string, 0, len(result.Repositories))
	for _, res := range result.Repositories {
		rows = append(rows, summaryRow(res))
	}
	fmt.Println()
	renderTable(os.Stdout, headers, rows)
	fmt.Println()

	p := result.Portfolio
	printInfo("Portfolio: %d repositories (%d failed), %d dependencies",
		p.Repositories, p.FailedRepositories, p.TotalDependencies)
	if p.TotalDefinite+p.TotalPotential > 0 {
		printWarning("Vulnerabilities: %d definite, %d potential across %d repositories",
			p.TotalDefinite, p.TotalPotential, p.VulnerableRepos)
	} else {
		printSuccess("No known vulnerabilities matched")
	}
}

func summaryRow(res *report.AnalysisResult) []string {
	deps := "-"
	if res.Manifest.OK() && res.Manifest.Value != nil {
		deps = strconv.Itoa(len(res.Manifest.Value.Dependencies))
	}
	definite, potential := "-", "-"
	if res.Advisories.OK() {
		definite = strconv.Itoa(res.Advisories.Value.TotalDefinite)
		potential = strconv.Itoa(res.Advisories.Value.TotalPotential)
	}
	identity := "-"
	if res.Identity.Matched() {
		identity = fmt.Sprintf("%s (%.1f)", res.Identity.Project.Slug, res.Identity.Confidence)
	}
	issues := "-"
	if res.ErrorTracking.OK() && res.ErrorTracking.Value != nil {
		issues = strconv.Itoa(res.ErrorTracking.Value.Total)
	}
	lines := "-"
	if res.CodeMetrics.OK() && res.CodeMetrics.Value != nil {
		lines = strconv.FormatInt(res.CodeMetrics.Value.TotalLines, 10)
	}
	state := "ok"
	if res.Failed {
		state = "failed"
	} else if degradedSections(res) > 0 {
		state = fmt.Sprintf("%d degraded", degradedSections(res))
	}
	return []string{res.Repository.FullName(), deps, definite, potential, identity, issues, lines, state}
}

func degradedSections(res *report.AnalysisResult) int {
	n := 0
	for _, state := range []report.SectionState{
		res.Metadata.State,
		res.Activity.State,
		res.Manifest.State,
		res.Advisories.State,
		res.ErrorTracking.State,
		res.CodeMetrics.State,
	} {
		if state == report.SectionDegraded {
			n++
		}
	}
	return n
}
