// Package cmd implements the adscan-admin CLI commands.
package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version string

	// Global flags
	flagAPIURL  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "adscan-admin",
	Short: "Adscan platform administration CLI",
	Long: `adscan-admin manages the marketing-content compliance scanner.

It can initiate scans, inspect scan jobs and their runs, requeue
completion checks for stuck runs, trigger auto-disposition, and manage
the database schema.

Scan commands talk to the API server (--api-url or ADSCAN_API_URL).
Queue and migrate commands connect to Redis and PostgreSQL directly
using the same environment variables as the server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("adscan-admin %s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "API base URL (env: ADSCAN_API_URL)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(dispositionCmd)
	rootCmd.AddCommand(migrateCmd)
}

func initConfig() {
	if flagAPIURL == "" {
		flagAPIURL = os.Getenv("ADSCAN_API_URL")
	}
	if flagAPIURL == "" {
		flagAPIURL = "http://localhost:8080"
	}
}
