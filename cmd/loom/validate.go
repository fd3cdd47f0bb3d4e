package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loomwork/loom/internal/validator"
	"github.com/loomwork/loom/pkg/api"
	"github.com/loomwork/loom/pkg/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a workflow document for consistency",
	Long:  `Parses a workflow document (YAML or JSON), checks its schema, and validates the resulting graph: dangling transitions, missing nodes, unreachable regions. Warnings are reported; errors set a non-zero exit code.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(args[0]); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(path string) error {
	doc, err := schema.LoadFile(path)
	if err != nil {
		return err
	}

	g, err := schema.Build(doc, schema.StubRegistry(doc))
	if err != nil {
		return err
	}

	issues := validator.Validate(g)
	for _, issue := range issues {
		fmt.Println(issue.String())
	}
	if api.HasErrors(issues) {
		return fmt.Errorf("graph %q has structural errors", g.Name)
	}

	fmt.Println("Workflow is valid.")
	return nil
}
