package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "fieldtrack",
	Short: "Location-aware offline-tolerant runtime for field exploration",
	Long: `fieldtrack tracks your position, detects arrival at mission locations
and durably records visit events, syncing them to the mission API whenever
connectivity allows. Offline operation is a first-class mode: geofence
definitions are cached locally and visits queue until the network returns.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(locationsCmd)
	rootCmd.AddCommand(purgeCmd)
}

func main() {
	// A .env alongside the binary is the field-deployment configuration
	// path; absence is not an error.
	godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
