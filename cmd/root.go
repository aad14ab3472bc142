package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the bookcal application
var rootCmd = &cobra.Command{
	Use:   "bookcal",
	Short: "Appointment availability and Google Calendar booking service",
	Long: `bookcal answers "which days and hours can still be booked" for tenant
companies and books appointments as Google Calendar events.

Each company has stored Google credentials and a scheduling configuration.
Availability is computed from working hours, blocked windows and already
booked appointments.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "bookcal version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
