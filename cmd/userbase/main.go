package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"userbase/cmd/internal/app"
)

func main() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCmd builds the userbase CLI. Configuration comes from USERBASE_*
// environment variables only.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "userbase",
		Short:         "Identity and session service for Hive, EVM, Farcaster and email users",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return app.Serve(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the database schema and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return app.Migrate(cmd.Context())
			},
		},
	)
	return root
}
