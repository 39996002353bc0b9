package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// splitProgramArgs pulls PROGRAM [ARGS...] out of a cobra command's
// positional args, honoring a "--" separator if the caller used one so
// flags meant for the child program are never parsed as tapectl's own.
func splitProgramArgs(cmd *cobra.Command, args []string) ([]string, error) {
	if dash := cmd.Flags().ArgsLenAtDash(); dash >= 0 {
		args = args[dash:]
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("missing PROGRAM: usage %s -- PROGRAM [ARGS...]", cmd.Name())
	}
	return args, nil
}

// recCmd implements `tapectl rec` (§6.3): spawn PROGRAM live, record every
// exchange. Defaults to record=new, fallback=proxy; both overridable.
func recCmd() *cobra.Command {
	f := &sharedFlags{}
	cmd := &cobra.Command{
		Use:   "rec [flags] -- PROGRAM [ARGS...]",
		Short: "Record a live session to tape",
		RunE: func(cmd *cobra.Command, args []string) error {
			progArgs, err := splitProgramArgs(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := buildSessionConfig(f, progArgs[0], progArgs[1:], modeDefaults{
				recordDefault:   "new",
				fallbackDefault: "proxy",
			})
			if err != nil {
				return err
			}
			return runAttached(cfg)
		},
	}
	addSharedFlags(cmd, f)
	return cmd
}
