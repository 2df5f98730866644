package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"socforge/bootstrap"
)

const maxRuleImportSize = 10 * 1024 * 1024

func newRulesCmd() *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage detection rules",
	}

	rulesCmd.AddCommand(newRulesListCmd())
	rulesCmd.AddCommand(newRulesImportCmd())

	return rulesCmd
}

func newRulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List detection rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			app, err := bootstrap.NewApp(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer app.Shutdown()

			rules, err := app.RuleService.ListRules(ctx)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}

			headerColor.Printf("%-38s %-35s %-9s %-8s %s\n", "ID", "NAME", "SEVERITY", "ENABLED", "TRIGGERS")
			for _, rule := range rules {
				enabled := color.GreenString("yes")
				if !rule.Enabled {
					enabled = color.YellowString("no")
				}
				fmt.Printf("%-38s %-35s %-9s %-8s %d\n",
					rule.ID, rule.Name, rule.Severity, enabled, rule.TotalTriggers)
			}
			fmt.Printf("\n%d rules\n", len(rules))
			return nil
		},
	}
}

func newRulesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import detection rules from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := os.Stat(args[0])
			if err != nil {
				return fmt.Errorf("cannot read rules file: %w", err)
			}
			if info.Size() > maxRuleImportSize {
				return fmt.Errorf("rules file exceeds %d byte limit", maxRuleImportSize)
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("cannot read rules file: %w", err)
			}

			ctx := context.Background()
			app, err := bootstrap.NewApp(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer app.Shutdown()

			result, err := app.RuleService.ImportYAML(ctx, data)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			successColor.Printf("Imported %d rules\n", result.Imported)
			if result.Skipped > 0 {
				warningColor.Printf("Skipped %d rules\n", result.Skipped)
			}
			for _, msg := range result.Errors {
				warningColor.Printf("  %s\n", msg)
			}
			return nil
		},
	}
}
