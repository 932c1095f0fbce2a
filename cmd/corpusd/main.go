// Corpusd is the vector sync and hybrid search daemon. It keeps a Qdrant
// collection in sync with per-application document sources and serves hybrid
// semantic + keyword search over HTTP and MCP.
//
// Usage:
//
//	# Start the daemon with defaults
//	corpusd
//
//	# Configure via file and environment
//	corpusd --config ~/.config/corpusd/config.yaml
//	SERVER_PORT=9090 QDRANT_HOST=localhost corpusd
//
//	# Serve MCP over stdio instead of HTTP
//	corpusd mcp
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "corpusd",
	Short:         "Vector sync and hybrid search daemon",
	Long:          "corpusd keeps a vector collection in sync with document sources and serves hybrid search over HTTP and MCP.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP over stdio",
	Long: `Run corpusd as an MCP stdio server for assistant runtimes.

The full sync pipeline runs in-process; tool calls hit the same engine the
HTTP daemon uses. Logs go to stderr because stdout carries the protocol.`,
	RunE: runStdio,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("corpusd\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file path (default ~/.config/corpusd/config.yaml)")
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "corpusd: %v\n", err)
		os.Exit(1)
	}
}
