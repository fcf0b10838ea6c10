package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"abilower/internal/ir"
	"abilower/internal/trace"
	"abilower/internal/vm"
)

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec [flags] FILE.abo FUNC [ARGS...]",
		Short: "Execute a function of a lowered module file",
		Long:  `Load a module written by "run -o" and call one of its functions with integer arguments.`,
		Args:  cobra.MinimumNArgs(2),
		RunE:  runExec,
	}
	cmd.Flags().Bool("emit-ir", false, "print the module before running it")
	cmd.Flags().Int("max-depth", 0, "maximum call depth (0 = default)")
	return cmd
}

func runExec(cmd *cobra.Command, args []string) error {
	path, name := args[0], args[1]
	emitIR, err := cmd.Flags().GetBool("emit-ir")
	if err != nil {
		return fmt.Errorf("failed to get emit-ir flag: %w", err)
	}
	maxDepth, err := cmd.Flags().GetInt("max-depth")
	if err != nil {
		return fmt.Errorf("failed to get max-depth flag: %w", err)
	}

	m, err := ir.ReadFile(path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if emitIR {
		if err := ir.DumpModule(out, m); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}

	id, ok := m.FuncByName(name)
	if !ok {
		return fmt.Errorf("%s: no function %q (have %v)", path, name, m.Names())
	}
	decl := m.Decl(id)
	if decl.Signature.UsesStructReturnParam() {
		return fmt.Errorf("%s returns an aggregate in memory; only scalar signatures can be called from the command line", name)
	}
	callArgs, err := parseArgs(decl.Signature.Params, args[2:])
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	tracer := trace.FromContext(cmd.Context())
	res, err := vm.New(m, vm.Options{MaxDepth: maxDepth, Tracer: tracer}).CallID(id, callArgs)
	if err != nil {
		return err
	}
	for i, r := range decl.Signature.Returns {
		fmt.Fprintf(out, "%s = %d\n", r.Type, vm.Signed(res[i], r.Type))
	}
	return nil
}

// parseArgs converts decimal or 0x-prefixed integers to the parameter
// types of a signature.
func parseArgs(params []ir.AbiParam, raw []string) ([]uint64, error) {
	if len(raw) != len(params) {
		return nil, fmt.Errorf("takes %d arguments, got %d", len(params), len(raw))
	}
	out := make([]uint64, len(raw))
	for i, s := range raw {
		t := params[i].Type
		n, err := strconv.ParseInt(s, 0, t.Bits())
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = uint64(n) & t.Mask()
	}
	return out, nil
}
