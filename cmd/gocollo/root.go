package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/njchilds90/gocollo/config"
	"github.com/njchilds90/gocollo/examples"
	"github.com/njchilds90/gocollo/internal/ctxlog"
	"github.com/njchilds90/gocollo/ocp"
)

// options are the flags shared by every subcommand.
type options struct {
	configPath string
	logLevel   string
	logFormat  string
	segments   int
	points     int
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "gocollo",
		Short:         "Direct collocation with hybrid symbolic/algorithmic derivatives",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "settings file (.yaml, .yml or .hcl)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format: text or json")
	pf.IntVar(&opts.segments, "segments", 0, "mesh segments (overrides default_segments)")
	pf.IntVar(&opts.points, "points", 0, "collocation points per segment (overrides default_points)")

	root.AddCommand(newSolveCmd(opts), newDerivativesCmd(opts), newStructureCmd(opts), newServeCmd(opts), newExamplesCmd())
	return root
}

// settings loads the settings file and applies flag overrides on top.
func (o *options) settings(cmd *cobra.Command) (config.Settings, error) {
	s, err := config.Load(o.configPath)
	if err != nil {
		return s, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		s.LogLevel = o.logLevel
	}
	if flags.Changed("log-format") {
		s.LogFormat = o.logFormat
	}
	if flags.Changed("segments") {
		s.DefaultSegments = o.segments
	}
	if flags.Changed("points") {
		s.DefaultPoints = o.points
	}
	return s, s.Validate()
}

// prepare resolves settings, builds the logger and looks up the example.
func (o *options) prepare(cmd *cobra.Command, name string) (context.Context, config.Settings, *ocp.Problem, error) {
	s, err := o.settings(cmd)
	if err != nil {
		return nil, s, nil, err
	}
	logger := ctxlog.New(s.LogLevel, s.LogFormat, cmd.ErrOrStderr())
	ctx := ctxlog.WithLogger(cmd.Context(), logger)
	p, err := examples.Lookup(name)
	if err != nil {
		return nil, s, nil, err
	}
	return ctx, s, p, nil
}

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "List the bundled example problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range examples.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
