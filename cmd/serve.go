package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"socforge/bootstrap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the socforge server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			app, err := bootstrap.NewApp(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			if err := app.Start(ctx); err != nil {
				app.Shutdown()
				return fmt.Errorf("failed to start application: %w", err)
			}

			app.WaitForShutdown()
			app.Shutdown()
			return nil
		},
	}
}
