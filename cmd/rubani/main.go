// Rubani — a query router for Octopus Deploy spaces.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rubani",
	Short: "Rubani — answer questions about Octopus Deploy spaces in plain language.",
	Long: `Rubani routes free-text questions about Octopus Deploy to the right tool:
general configuration questions are answered from an exported snapshot of the
space, usage questions from the product documentation, and runbook questions
from the live dashboard. Answers come back as text, over HTTP or WebSocket.`,
	RunE:          runGateway, // Default to gateway mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(gatewayCmd, queryCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
