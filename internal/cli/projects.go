package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parkerhq/fleetaudit/pkg/config"
	"github.com/parkerhq/fleetaudit/pkg/errors"
	"github.com/parkerhq/fleetaudit/pkg/hosting"
	"github.com/parkerhq/fleetaudit/pkg/integrations/sentry"
	"github.com/parkerhq/fleetaudit/pkg/pipeline"
	"github.com/parkerhq/fleetaudit/pkg/tracker"
)

// projectsCommand creates the projects command.
func (c *CLI) projectsCommand() *cobra.Command {
	var (
		configPath string
		org        string
		repoList   string
		noCache    bool
	)

	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List error-tracking projects and preview identity matches",
		Long: `Projects lists every project in the error-tracking organization. With
--repos it also previews which project each repository would be matched
to, without running the full pipeline.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

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
			if cfg.Tracker.Org == "" {
				return errors.New(errors.ErrCodeInvalidInput, "no organization: set --org, tracker.org, or %s", envSentryOrg)
			}

			token := os.Getenv(envSentryToken)
			if token == "" {
				return errors.New(errors.ErrCodeUnauthorized, "%s is not set", envSentryToken)
			}

			store, err := newCache(ctx, cfg, noCache)
			if err != nil {
				return err
			}
			defer store.Close()

			sc := sentry.NewClient(store, token)
			if cfg.Tracker.BaseURL != "" {
				sc = sentry.NewClientWithBaseURL(store, token, cfg.Tracker.BaseURL)
			}
			var client tracker.Client = sc.WithCacheTTL(cfg.Cache.TTL())

			projects, err := client.ListProjects(ctx, cfg.Tracker.Org)
			if err != nil {
				return err
			}

			printProjects(cfg.Tracker.Org, projects)
			if repoList == "" {
				return nil
			}

			repos, err := pipeline.LoadRepoList(repoList)
			if err != nil {
				return err
			}
			printMatchPreview(repos, projects)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&org, "org", "", "error-tracking organization slug")
	cmd.Flags().StringVar(&repoList, "repos", "", "repository list file to preview matches for")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the response cache")

	return cmd
}

func printProjects(org string, projects []tracker.Project) {
	printInfo("Organization %s has %d projects", org, len(projects))
	fmt.Println()

	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{p.Name, p.Slug, strings.Join(p.Teams, ", ")})
	}
	renderTable(os.Stdout, []string{"Name", "Slug", "Teams"}, rows)
	fmt.Println()
}

func printMatchPreview(repos []hosting.Repository, projects []tracker.Project) {
	rows := make([][]string, 0, len(repos))
	for _, repo := range repos {
		m := tracker.Match(repo.Owner, repo.Name, projects)
		project, strategy, confidence := "-", "-", "-"
		if m.Matched() {
			project = m.Project.Slug
			strategy = m.Strategy
			confidence = fmt.Sprintf("%.1f", m.Confidence)
		}
		rows = append(rows, []string{repo.FullName(), project, strategy, confidence})
	}
	renderTable(os.Stdout, []string{"Repository", "Project", "Strategy", "Confidence"}, rows)
	fmt.Println()
}
