package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/rubani/internal/config"
	"github.com/jkaninda/rubani/internal/tools"
	"github.com/jkaninda/rubani/internal/tools/factory"
)

var (
	queryText       string
	queryConfigPath string
	queryTimeout    int
	queryVerbose    bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Answer a one-shot query locally, without the HTTP gateway",
	Long: `Route a single question through the tool selection pipeline and print
the answer. Uses the Octopus credentials from the config file.

Examples:
  rubani query -m "What projects are in the Default space?"
  rubani query -m "Show the dashboard for the Backup runbook in MyProject"`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryText, "message", "m", "", "question to answer (required)")
	queryCmd.Flags().StringVar(&queryConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	queryCmd.Flags().IntVar(&queryTimeout, "timeout", 300, "timeout in seconds")
	queryCmd.Flags().BoolVarP(&queryVerbose, "verbose", "v", false, "print progress notes to stderr")

	_ = queryCmd.MarkFlagRequired("message")
}

func runQuery(_ *cobra.Command, _ []string) error {
	level := slog.LevelWarn
	if queryVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(goutils.Env("RUBANI_CONFIG", queryConfigPath))
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(queryTimeout)*time.Second)
	defer cancel()

	freq := factory.Request{
		Query:         queryText,
		OctopusURL:    cfg.Octopus.URL,
		OctopusAPIKey: cfg.Octopus.APIKey,
		QueryLog: func(message string) {
			if queryVerbose {
				fmt.Fprintln(os.Stderr, message)
			}
		},
	}

	action, err := sc.Router.Route(ctx, queryText, func() *tools.Registry {
		return sc.Factory.Registry(freq)
	})
	if err != nil {
		return err
	}

	answer, err := action.Invoke(ctx)
	if err != nil {
		return err
	}

	fmt.Println(answer)
	return nil
}
