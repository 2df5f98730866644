package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"socforge/bootstrap"
	"socforge/simulate"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

func newSimulateCmd() *cobra.Command {
	var (
		intensity     string
		duration      int
		includeBenign bool
		listScenarios bool
	)

	cmd := &cobra.Command{
		Use:   "simulate [scenario]",
		Short: "Run an attack simulation through the detection pipeline",
		Long: `Generates synthetic attack telemetry for the named scenario, runs it
through detection and correlation, and prints what was detected.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if listScenarios || len(args) == 0 {
				printScenarios()
				return nil
			}
			scenario := args[0]
			if !simulate.IsValidScenario(scenario) {
				return fmt.Errorf("unknown scenario %q, run with --list to see options", scenario)
			}

			ctx := context.Background()
			app, err := bootstrap.NewApp(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer app.Shutdown()

			run, err := app.Simulator.Run(ctx, simulate.Params{
				Scenario:        scenario,
				Intensity:       intensity,
				DurationSeconds: duration,
				IncludeBenign:   includeBenign,
			})
			if err != nil {
				return fmt.Errorf("simulation failed: %w", err)
			}

			headerColor.Printf("Simulation %s\n", run.ID)
			fmt.Printf("  Scenario:  %s\n", run.Scenario)
			fmt.Printf("  Events:    %d\n", run.EventsGenerated)
			if run.AlertsTriggered > 0 {
				successColor.Printf("  Alerts:    %d\n", run.AlertsTriggered)
			} else {
				warningColor.Println("  Alerts:    0 (nothing detected)")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&intensity, "intensity", "i", "medium", "event volume: low, medium, or high")
	cmd.Flags().IntVarP(&duration, "duration", "d", 120, "simulated time window in seconds")
	cmd.Flags().BoolVar(&includeBenign, "benign", true, "mix in benign background traffic")
	cmd.Flags().BoolVarP(&listScenarios, "list", "l", false, "list available scenarios")

	return cmd
}

func printScenarios() {
	headerColor.Println("Available scenarios:")
	for _, s := range simulate.Scenarios() {
		infoColor.Printf("  %-18s", s.ID)
		fmt.Printf(" %s\n", s.Description)
	}
}
