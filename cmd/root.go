package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "1.0.0"

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "scrimsbot",
		Short: "community-management bot data layer",
		Long: fmt.Sprintf(`scrimsbot (v%s)

The data-access layer of the scrims community-management bot: cached
relational tables over postgres with cross-process change notifications.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of scrimsbot",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("scrimsbot v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
