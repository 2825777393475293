package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/HendryAvila/substrate/internal/server"
	"github.com/HendryAvila/substrate/internal/workflow"
	"github.com/spf13/cobra"
)

// NewWorkflowsCommand creates the workflows command group.
func NewWorkflowsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "Inspect and validate workflow definitions",
	}
	cmd.AddCommand(newWorkflowsListCommand(rootOpts))
	cmd.AddCommand(newWorkflowsValidateCommand(rootOpts))
	return cmd
}

func newWorkflowsListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		category string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List built-in and local workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.Config()
			if err != nil {
				return err
			}
			reg, rejected, err := workflow.LoadDir(cfg.WorkflowsDir)
			if err != nil {
				return err
			}
			for _, e := range rejected {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", e)
			}

			list := reg.List(category)
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, list)
			}
			for _, s := range list {
				cat := s.Category
				if cat == "" {
					cat = "-"
				}
				fmt.Fprintf(out, "%s\t%s\t%d steps\t%s\n", s.Name, cat, s.Steps, strings.Join(s.Tools, ","))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only workflows in this category")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newWorkflowsValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dir|file]",
		Short: "Check workflow definitions and report every violation",
		Long: `Check workflow definitions and report every violation.

Without an argument, the configured workflows directory is checked together
with the built-in definitions. With a directory, only its files are checked.
With a file, that single definition is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				valid    int
				rejected []error
			)
			switch {
			case len(args) == 0:
				cfg, err := rootOpts.Config()
				if err != nil {
					return err
				}
				reg, errs, err := workflow.LoadDir(cfg.WorkflowsDir)
				if err != nil {
					return err
				}
				valid, rejected = reg.Len(), errs
			case isDir(args[0]):
				raw, err := workflow.ReadDir(args[0])
				if err != nil {
					return err
				}
				reg, errs := workflow.Load(raw)
				valid, rejected = reg.Len(), errs
			default:
				data, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("reading %s: %w", args[0], err)
				}
				if _, err := workflow.ParseDefinitionYAML(data); err != nil {
					rejected = append(rejected, err)
				} else {
					valid = 1
				}
			}

			out := cmd.OutOrStdout()
			invalid := 0
			for _, e := range rejected {
				violations := workflow.Violations(e)
				if len(violations) == 0 {
					fmt.Fprintf(out, "invalid: %v\n", e)
				}
				for _, v := range violations {
					fmt.Fprintf(out, "invalid: %v\n", v)
				}
				invalid++
			}
			fmt.Fprintf(out, "%d valid, %d invalid\n", valid, invalid)
			if invalid > 0 {
				return fmt.Errorf("%d invalid workflow definitions", invalid)
			}
			return nil
		},
	}
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "substrate v%s\n", server.Version)
		},
	}
}
