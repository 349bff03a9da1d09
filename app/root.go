// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "identity-kit",
	Short: "identity-kit is a multi-tenant identity and user management service",
	Long: `identity-kit is a multi-tenant identity and user management service
that handles registration, confirmation, sessions, role and group
assignment and integration events for hosting applications.`,
	Args: cobra.OnlyValidArgs,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
