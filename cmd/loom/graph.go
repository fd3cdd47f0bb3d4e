package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loomwork/loom/pkg/diagram"
	"github.com/loomwork/loom/pkg/schema"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <file>",
	Short: "Export a workflow document as a Mermaid diagram",
	Long:  `Parses a workflow document and outputs a Mermaid flowchart (graph TD) representing its nodes and transitions.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runGraph(args[0]); err != nil {
			fmt.Printf("Error rendering graph: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}

func runGraph(path string) error {
	doc, err := schema.LoadFile(path)
	if err != nil {
		return err
	}

	g, err := schema.Build(doc, schema.StubRegistry(doc))
	if err != nil {
		return err
	}

	fmt.Print(diagram.Mermaid(g))
	return nil
}
