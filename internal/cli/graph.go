package cli

import (
	"fmt"
	"io"

	"github.com/picklr-io/webstack/internal/engine"
	"github.com/picklr-io/webstack/internal/ir"
	"github.com/picklr-io/webstack/internal/stack"
	"github.com/spf13/cobra"
)

func newGraphCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Output the dependency graph in DOT format",
		Long: `Generates a visual representation of the resource dependency graph
in Graphviz DOT format. Pipe the output to 'dot' to generate an image:

  webstack graph | dot -Tpng > graph.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			d, err := stack.Build(cfg)
			if err != nil {
				return err
			}
			return writeDOT(cmd.OutOrStdout(), d.Resources)
		},
	}
}

func writeDOT(out io.Writer, resources []*ir.Resource) error {
	dag, err := engine.BuildDAG(resources)
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}

	fmt.Fprintln(out, "digraph webstack {")
	fmt.Fprintln(out, "  rankdir = \"BT\";")
	fmt.Fprintln(out, "  node [shape = rect];")
	fmt.Fprintln(out)

	order := dag.CreationOrder()
	for _, addr := range order {
		fmt.Fprintf(out, "  %q;\n", addr)
	}
	fmt.Fprintln(out)

	for _, addr := range order {
		for _, dep := range dag.Dependencies(addr) {
			fmt.Fprintf(out, "  %q -> %q;\n", addr, dep)
		}
	}

	fmt.Fprintln(out, "}")
	return nil
}
