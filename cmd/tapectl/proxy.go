package main

import "github.com/spf13/cobra"

// proxyCmd implements `tapectl proxy` (§6.3): always run PROGRAM live and
// record, falling back to a fresh tape on any miss. record=new and
// fallback=proxy are forced here, not just defaulted — --record/--fallback
// are accepted but ignored for this subcommand.
func proxyCmd() *cobra.Command {
	f := &sharedFlags{}
	cmd := &cobra.Command{
		Use:   "proxy [flags] -- PROGRAM [ARGS...]",
		Short: "Run a live session, always recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			progArgs, err := splitProgramArgs(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := buildSessionConfig(f, progArgs[0], progArgs[1:], modeDefaults{
				forcedRecord:   "new",
				forcedFallback: "proxy",
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
