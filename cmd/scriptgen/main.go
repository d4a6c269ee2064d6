// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// scriptgen runs the script generation pipeline synchronously from the
// command line: breakdown, outline, and full script for one (project,
// series, theme), written to a file. It shares the server's configuration
// and database, so scripts it generates show up in the API.
//
// Exit codes: 0 success, 2 validation error, 3 missing credential,
// 4 transient upstream failure, 5 quota exhausted, 1 anything else.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/creatorscope/channelintel/internal/cloud"
	"github.com/creatorscope/channelintel/internal/core/commands"
	"github.com/creatorscope/channelintel/internal/core/cor"
	"github.com/creatorscope/channelintel/internal/core/discovery"
	"github.com/creatorscope/channelintel/internal/core/errs"
	"github.com/creatorscope/channelintel/internal/core/jobs"
	"github.com/creatorscope/channelintel/internal/core/llm"
	"github.com/creatorscope/channelintel/internal/core/model"
	"github.com/creatorscope/channelintel/internal/core/script"
	"github.com/creatorscope/channelintel/internal/core/search"
	"github.com/creatorscope/channelintel/internal/core/store"
	"github.com/creatorscope/channelintel/internal/core/taxonomy"
	"github.com/creatorscope/channelintel/internal/core/workflow"
	"github.com/creatorscope/channelintel/internal/telemetry"
)

var flags struct {
	projectID   string
	series      string
	theme       string
	title       string
	durationMin int
	hostName    string
	sponsorName string
	userID      string
	outFile     string
}

var rootCmd = &cobra.Command{
	Use:           "scriptgen",
	Short:         "Generate a full video script for a project series theme",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&flags.projectID, "project", "", "project id (required)")
	rootCmd.Flags().StringVar(&flags.series, "series", "", "taxonomy series name (required)")
	rootCmd.Flags().StringVar(&flags.theme, "theme", "", "taxonomy theme name (required)")
	rootCmd.Flags().StringVar(&flags.title, "title", "", "video title (required)")
	rootCmd.Flags().IntVar(&flags.durationMin, "duration", 15, "target video duration in minutes")
	rootCmd.Flags().StringVar(&flags.hostName, "host", "", "host name substituted into the script")
	rootCmd.Flags().StringVar(&flags.sponsorName, "sponsor", "", "sponsor name for the sponsor segment")
	rootCmd.Flags().StringVar(&flags.userID, "user", "local", "user whose stored credentials to run under")
	rootCmd.Flags().StringVar(&flags.outFile, "out", "script.txt", "output file for the rendered script")
	_ = rootCmd.MarkFlagRequired("project")
	_ = rootCmd.MarkFlagRequired("series")
	_ = rootCmd.MarkFlagRequired("theme")
	_ = rootCmd.MarkFlagRequired("title")
}

func run(ctx context.Context) error {
	config := cloud.NewConfig()
	cloud.LoadConfig(config)

	clients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	defer clients.Close()

	db, err := store.Open(config.Database)
	if err != nil {
		return err
	}
	repository := store.NewStore(db)

	secrets, err := repository.ListSecrets(ctx, flags.userID)
	if err != nil {
		return err
	}
	user := jobs.NewUserContext(flags.userID, secrets)

	deps, err := buildDeps(ctx, config, clients, repository, user)
	if err != nil {
		return err
	}

	chainCtx, err := workflow.Run(ctx,
		workflow.NewGenerateScriptWorkflow(deps),
		flags.projectID,
		map[string]any{
			commands.KeySeries:      flags.series,
			commands.KeyTheme:       flags.theme,
			commands.KeyTitle:       flags.title,
			commands.KeyDurationMin: flags.durationMin,
			commands.KeyHostName:    flags.hostName,
			commands.KeySponsorName: flags.sponsorName,
		},
		func(percent int, step string) {
			fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", percent, step)
		},
	)
	if err != nil {
		return err
	}

	project, _ := chainCtx.Get(cor.CtxIn).(*model.Project)
	if project == nil {
		return errs.New(errs.KindInternal, "pipeline finished without a project")
	}
	fullScript, ok := project.Scripts[model.ContentKey(flags.series, flags.theme)]
	if !ok {
		return errs.New(errs.KindInternal, "pipeline finished without a script")
	}

	if err := os.WriteFile(flags.outFile, []byte(fullScript.Render()), 0o644); err != nil {
		return errs.Wrap(err, errs.KindInternal, "failed to write %s", flags.outFile)
	}

	if report, ok := chainCtx.Get(commands.KeyCostReport).(*model.CostReport); ok && report != nil {
		fmt.Fprintf(os.Stderr, "tokens in=%d out=%d cost=$%.4f\n",
			report.Usage.InputTokens, report.Usage.OutputTokens, report.TotalCost)
	}
	fmt.Println(flags.outFile)
	return nil
}

// buildDeps assembles the same user-scoped pipeline components the server
// builds per job, minus the thumbnail stack the CLI never touches.
func buildDeps(ctx context.Context, config *cloud.Config, clients *cloud.ServiceClients, repository *store.Store, user *jobs.UserContext) (*workflow.Deps, error) {
	searchCfg := config.Search
	if keys := user.SearchKeys(); len(keys) > 0 {
		searchCfg.APIKeys = keys
	}
	searchClient, err := search.NewClient(ctx, searchCfg, nil)
	if err != nil {
		return nil, err
	}

	gate := llm.NewSharedGate(config.Application.LLMWorkerSlots)
	agent := func(role string) (*llm.Client, error) {
		settings, ok := config.AgentModels[role]
		if !ok {
			return nil, errs.New(errs.KindInternal, "agent model %q is not configured", role)
		}
		generator, ok := clients.AgentModels[role]
		if !ok {
			return nil, errs.New(errs.KindInternal, "agent model %q has no initialized client", role)
		}
		return llm.NewClient(role, generator, settings, gate), nil
	}

	classifier, err := agent("classifier")
	if err != nil {
		return nil, err
	}
	breakdownClient, err := agent("breakdown")
	if err != nil {
		return nil, err
	}
	outlineClient, err := agent("outline")
	if err != nil {
		return nil, err
	}
	scriptClient, err := agent("script")
	if err != nil {
		return nil, err
	}

	return &workflow.Deps{
		Store:       repository,
		Search:      searchClient,
		Extractor:   taxonomy.NewExtractor(classifier),
		Discoverer:  discovery.NewDiscoverer(searchClient, config.Application.DiscoveryWorkerSlots),
		Breakdowner: script.NewBreakdowner(breakdownClient),
		Outliner:    script.NewOutliner(outlineClient),
		ScriptGen:   script.NewGenerator(scriptClient),
	}, nil
}

func main() {
	telemetry.SetupLogging()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("script generation failed", "error", err)
		os.Exit(errs.KindOf(err).ExitCode())
	}
}
