// Package main provides the entry point for the ScriptForge HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "scriptforge",
	Short: "ScriptForge pipeline server",
	Long:  "ScriptForge turns news articles and short-form video transcripts into scored, revisable video scripts through a staged AI pipeline, exposed over a REST API.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
