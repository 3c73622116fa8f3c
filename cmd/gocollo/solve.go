package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/njchilds90/gocollo/internal/telemetry"
	"github.com/njchilds90/gocollo/ocp"
)

func newSolveCmd(opts *options) *cobra.Command {
	var (
		metrics    bool
		trajectory bool
	)
	cmd := &cobra.Command{
		Use:   "solve <example>",
		Short: "Solve an example problem and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, s, p, err := opts.prepare(cmd, args[0])
			if err != nil {
				return err
			}
			res, err := ocp.Solve(ctx, p, s, nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			sol := res.Final()
			fmt.Fprintf(out, "problem:          %s\n", p.Name)
			fmt.Fprintf(out, "status:           %s\n", sol.Status.Code)
			fmt.Fprintf(out, "nlp iterations:   %d\n", sol.Status.Iterations)
			fmt.Fprintf(out, "objective:        %.10g\n", res.Objective())
			fmt.Fprintf(out, "initial time:     %.10g\n", sol.InitialTime())
			fmt.Fprintf(out, "final time:       %.10g\n", sol.FinalTime())
			fmt.Fprintf(out, "mesh iterations:  %d\n", len(res.Solutions))
			fmt.Fprintf(out, "max mesh error:   %.3e\n", sol.MaxMeshError())
			fmt.Fprintf(out, "converged:        %t\n", res.Converged)
			for k, q := range p.Integrals {
				fmt.Fprintf(out, "%-17s %.10g\n", q.Name+":", sol.Integral()[k])
			}
			for k, sp := range p.Parameters {
				fmt.Fprintf(out, "%-17s %.10g\n", sp.Name+":", sol.Parameter()[k])
			}
			if trajectory {
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
				fmt.Fprint(tw, "t\t")
				for _, st := range p.States {
					fmt.Fprintf(tw, "%s\t", st.Name)
				}
				for _, c := range p.Controls {
					fmt.Fprintf(tw, "%s\t", c.Name)
				}
				fmt.Fprintln(tw)
				for i, t := range sol.Time() {
					fmt.Fprintf(tw, "%.6g\t", t)
					for _, y := range sol.State() {
						fmt.Fprintf(tw, "%.6g\t", y[i])
					}
					for _, u := range sol.Control() {
						fmt.Fprintf(tw, "%.6g\t", u[i])
					}
					fmt.Fprintln(tw)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			if metrics {
				return telemetry.WriteSummary(out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&metrics, "metrics", false, "print solver metrics after solving")
	cmd.Flags().BoolVar(&trajectory, "trajectory", false, "print states and controls at every mesh node")
	return cmd
}
