package main

import "github.com/spf13/cobra"

// playCmd implements `tapectl play` (§6.3): replay PROGRAM's session from
// tape with no live child unless a tape miss falls back to PROXY. Record
// is forced to disabled; fallback defaults to not_found but stays
// flag-overridable.
func playCmd() *cobra.Command {
	f := &sharedFlags{}
	cmd := &cobra.Command{
		Use:   "play [flags] -- PROGRAM [ARGS...]",
		Short: "Replay a session from tape",
		RunE: func(cmd *cobra.Command, args []string) error {
			progArgs, err := splitProgramArgs(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := buildSessionConfig(f, progArgs[0], progArgs[1:], modeDefaults{
				fallbackDefault: "not_found",
				forcedRecord:    "disabled",
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
