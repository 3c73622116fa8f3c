package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/njchilds90/gocollo/mesh"
	"github.com/njchilds90/gocollo/ocp"
)

func newStructureCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "structure <example>",
		Short: "Print the Jacobian sparsity blocks of an example on the default mesh",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, s, p, err := opts.prepare(cmd, args[0])
			if err != nil {
				return err
			}
			m, err := ocp.Compile(ctx, p, s)
			if err != nil {
				return err
			}
			msh, err := mesh.NewUniform(s.DefaultSegments, s.DefaultPoints)
			if err != nil {
				return err
			}
			it, err := m.NewIteration(ctx, msh, 1, m.Guess)
			if err != nil {
				return err
			}
			l := it.Layout
			st := it.Structure()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "nodes %d, variables %d, constraints %d, nonzeros %d\n", l.N, l.NumX(), l.NumC(), st.Len())
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "block\trange\tnonzeros")
			for _, b := range st.Blocks {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", b.Name, b.Slice, b.Len())
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			rows, _ := it.HessianStructure()
			fmt.Fprintf(out, "hessian nonzeros %d\n", len(rows))
			return nil
		},
	}
}
