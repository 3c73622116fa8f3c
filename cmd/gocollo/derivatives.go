package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/njchilds90/gocollo/graph"
	"github.com/njchilds90/gocollo/ocp"
	"github.com/njchilds90/gocollo/symbolic"
)

// derivativeEntry is one nonzero of a derivative function.
type derivativeEntry struct {
	Row  int                    `json:"row"`
	Col  int                    `json:"col"`
	Expr map[string]interface{} `json:"expr"`
}

type derivativeFunction struct {
	Name    string            `json:"name"`
	Rows    int               `json:"rows"`
	Cols    int               `json:"cols"`
	Entries []derivativeEntry `json:"entries"`
}

func newDerivativesCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "derivatives <example>",
		Short: "Print every function and derivative built for an example",
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
			g := m.Graph
			funcs := derivativeFunctions(g)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(funcs)
			}
			for i, f := range g.Derivatives.Functions() {
				fmt.Fprintf(out, "%s (%d×%d)\n", f.Name, f.Rows, f.Cols)
				for _, e := range funcs[i].Entries {
					fmt.Fprintf(out, "  [%d,%d] %s\n", e.Row, e.Col, g.ToUser(g.Definition(f, e.Row*f.Cols+e.Col)))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "encode expressions as JSON trees")
	return cmd
}

// derivativeFunctions lists the nonzero entries of every built function in
// user names.
func derivativeFunctions(g *graph.ExpressionGraph) []derivativeFunction {
	var funcs []derivativeFunction
	for _, f := range g.Derivatives.Functions() {
		df := derivativeFunction{Name: f.Name, Rows: f.Rows, Cols: f.Cols}
		for k := 0; k < f.Len(); k++ {
			if symbolic.IsZero(f.Expr[k]) {
				continue
			}
			df.Entries = append(df.Entries, derivativeEntry{
				Row:  k / f.Cols,
				Col:  k % f.Cols,
				Expr: symbolic.EncodeJSON(g.ToUser(g.Definition(f, k))),
			})
		}
		funcs = append(funcs, df)
	}
	return funcs
}
