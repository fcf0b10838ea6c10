package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"abilower/internal/demo"
	"abilower/internal/ir"
	"abilower/internal/layout"
	"abilower/internal/trace"
	"abilower/internal/vm"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] DEMO",
		Short: "Lower a built-in demo program and execute it",
		Long:  "Lower a built-in demo program and execute its main function on the IR interpreter.\n\nDemos: " + strings.Join(demo.Names(), ", "),
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDemo,
	}
	cmd.Flags().String("target", "x86_64", "target architecture (x86_64|i686)")
	cmd.Flags().String("policy", "aligned", "layout policy (aligned|packed)")
	cmd.Flags().Int("max-scalars", layout.DefaultMaxScalars, "largest aggregate passed by scalars")
	cmd.Flags().Bool("emit-ir", false, "print the lowered module before running it")
	cmd.Flags().StringP("output", "o", "", "write the lowered module to this file")
	cmd.Flags().Bool("list", false, "list the available demos")
	return cmd
}

func runDemo(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	list, err := cmd.Flags().GetBool("list")
	if err != nil {
		return fmt.Errorf("failed to get list flag: %w", err)
	}
	if list || len(args) == 0 {
		for _, d := range demo.All() {
			fmt.Fprintf(out, "%-16s %s\n", d.Name, d.Description)
		}
		return nil
	}

	d, ok := demo.Lookup(args[0])
	if !ok {
		return fmt.Errorf("unknown demo %q (available: %s)", args[0], strings.Join(demo.Names(), ", "))
	}
	opts, err := readLayoutOptions(cmd)
	if err != nil {
		return err
	}
	emitIR, err := cmd.Flags().GetBool("emit-ir")
	if err != nil {
		return fmt.Errorf("failed to get emit-ir flag: %w", err)
	}
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}

	tracer := trace.FromContext(cmd.Context())
	m, err := d.Build(opts, tracer)
	if err != nil {
		return err
	}
	if emitIR {
		if err := ir.DumpModule(out, m); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}
	if output != "" {
		if err := ir.WriteFile(output, m); err != nil {
			return err
		}
		if !quiet(cmd) {
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", output)
		}
	}

	res, err := vm.New(m, vm.Options{Tracer: tracer}).Call(demo.Entry)
	if err != nil {
		return err
	}
	got := vm.Signed(res[0], ir.I32)
	fmt.Fprintf(out, "%s: %s() = %d\n", d.Name, demo.Entry, got)
	if got != d.Want {
		fmt.Fprintln(out, color.RedString("expected %d", d.Want))
		return &exitError{code: 1}
	}
	return nil
}

func readLayoutOptions(cmd *cobra.Command) (layout.Options, error) {
	var opts layout.Options
	targetName, err := cmd.Flags().GetString("target")
	if err != nil {
		return opts, fmt.Errorf("failed to get target flag: %w", err)
	}
	if opts.Target, err = layout.TargetByName(targetName); err != nil {
		return opts, err
	}
	policy, err := cmd.Flags().GetString("policy")
	if err != nil {
		return opts, fmt.Errorf("failed to get policy flag: %w", err)
	}
	if opts.Policy, err = layout.ParsePolicy(policy); err != nil {
		return opts, err
	}
	if opts.MaxScalars, err = cmd.Flags().GetInt("max-scalars"); err != nil {
		return opts, fmt.Errorf("failed to get max-scalars flag: %w", err)
	}
	if opts.MaxScalars < 1 {
		return opts, fmt.Errorf("--max-scalars must be at least 1")
	}
	return opts, nil
}
