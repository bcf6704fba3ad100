package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	contractx "github.com/napatw/salesintel/agent/contract"
	llmx "github.com/napatw/salesintel/agent/llm"
	memoryx "github.com/napatw/salesintel/agent/memory"
	orchestratorx "github.com/napatw/salesintel/agent/orchestrator"
	reportx "github.com/napatw/salesintel/agent/report"
	stagesx "github.com/napatw/salesintel/agent/stages"
	configx "github.com/napatw/salesintel/pkg/config"
	_ "github.com/napatw/salesintel/pkg/logger/autoload"
	websearchx "github.com/napatw/salesintel/pkg/websearch"
)

var (
	demoMode = flag.Bool("demo", false, "run with canned search and model providers, no credentials needed")
	noCache  = flag.Bool("no-cache", false, "bypass the memory bank for this run")
)

func main() {
	os.Exit(run())
}

func run() int {
	// configx parses flags on first use, so flag values and positional args
	// are available from here on
	orchCfg := configx.MustNew[orchestratorx.Config]("ORCHESTRATOR")

	subject := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if subject == "" {
		fmt.Fprintln(os.Stderr, "usage: salesintel [flags] <company name>")
		flag.PrintDefaults()
		return 2
	}

	if *noCache {
		orchCfg.DisableCache = true
	}

	registry, err := buildRegistry(*demoMode)
	if err != nil {
		log.Error().Err(err).Msg("failed to build stage registry")
		return 1
	}

	bank, err := memoryx.Open(*configx.MustNew[memoryx.Config]("MEMORY"))
	if err != nil {
		log.Error().Err(err).Msg("failed to open memory bank")
		return 1
	}

	sink, err := reportx.NewFileSink(*configx.MustNew[reportx.Config]("REPORT"))
	if err != nil {
		log.Error().Err(err).Msg("failed to create report sink")
		return 1
	}

	orch, err := orchestratorx.New(bank, registry, sink, *orchCfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to build orchestrator")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := orch.Run(ctx, subject)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn().Msg("run interrupted")
			return 130
		}
		log.Error().Err(err).Msg("run failed to start")
		return 1
	}

	printSummary(os.Stdout, report)

	if report.Status == contractx.StatusFailed {
		return 1
	}
	return 0
}

func buildRegistry(demo bool) (contractx.Registry, error) {
	if demo {
		return stagesx.NewRegistry(stagesx.DemoSearch{}, stagesx.DemoCompleter{}, stagesx.DemoCompleter{})
	}

	search, err := websearchx.New(*configx.MustNew[websearchx.Config]("SEARCH"))
	if err != nil {
		return nil, fmt.Errorf("search client: %w", err)
	}

	return stagesx.NewRegistryFromConfig(*configx.MustNew[llmx.Config]("LLM"), stagesx.NewSearchProvider(search))
}

func printSummary(w *os.File, report contractx.Report) {
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "SALES INTELLIGENCE REPORT: %s\n", report.Subject)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Run ID: %s\n", report.RunID)
	fmt.Fprintf(w, "Status: %s\n", report.Status)
	if report.FromCache {
		fmt.Fprintln(w, "Source: memory bank (cached)")
	}

	if a := report.Analysis; a != nil {
		fmt.Fprintln(w, "\nKEY CHALLENGES:")
		for _, c := range a.KeyChallenges {
			fmt.Fprintf(w, "  - %s\n", c)
		}
		fmt.Fprintln(w, "\nOPPORTUNITIES:")
		for _, o := range a.Opportunities {
			fmt.Fprintf(w, "  - %s\n", o)
		}
		if a.RecommendedApproach != "" {
			fmt.Fprintf(w, "\nRECOMMENDED APPROACH:\n  %s\n", a.RecommendedApproach)
		}
	}

	if c := report.Contacts; c != nil {
		fmt.Fprintf(w, "\nPRIORITY CONTACTS (%d found):\n", c.TotalFound)
		for i, contact := range c.Prioritized {
			if i == 3 {
				break
			}
			fmt.Fprintf(w, "  %d. %s", i+1, contact.Name)
			if contact.Title != "" {
				fmt.Fprintf(w, " (%s)", contact.Title)
			}
			fmt.Fprintf(w, " [score %d]\n", contact.PriorityScore)
		}
	}

	if o := report.Outreach; o != nil {
		fmt.Fprintf(w, "\nOUTREACH EMAILS (%d):\n", len(o.Emails))
		for _, email := range o.Emails {
			fmt.Fprintf(w, "  To: %s\n  Subject: %s\n", email.Recipient, email.Subject)
		}
	}

	if len(report.Errors) > 0 {
		fmt.Fprintln(w, "\nERRORS:")
		for _, failure := range report.Errors {
			fmt.Fprintf(w, "  [%s] %s: %s\n", failure.Kind, failure.Stage, failure.Message)
		}
	}
	fmt.Fprintln(w, strings.Repeat("=", 60))
}
