// Command tapectl records and replays interactive terminal sessions as
// JSON5 tapes.
package main

import (
	"fmt"
	"os"

	"github.com/ehrlich-b/tapectl/internal/replay"
	"github.com/ehrlich-b/tapectl/internal/store"
	"github.com/ehrlich-b/tapectl/internal/tape"
	"github.com/spf13/cobra"
)

// Exit codes per §6.3.
const (
	exitOK          = 0
	exitTapeMiss    = 2
	exitSchemaError = 3
	exitIOError     = 4
	exitCLIMisuse   = 64
)

func main() {
	root := &cobra.Command{
		Use:           "tapectl",
		Short:         "Record and replay interactive terminal sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		recCmd(),
		playCmd(),
		proxyCmd(),
		tapesCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a returned error to the process exit code §6.3 mandates.
func exitCodeFor(err error) int {
	fmt.Fprintln(os.Stderr, "error:", err)
	switch err.(type) {
	case *replay.TapeMissError:
		return exitTapeMiss
	case *tape.SchemaError:
		return exitSchemaError
	case *store.TapeIoError, *store.TapeLockError, *store.RedactionError:
		return exitIOError
	default:
		return exitCLIMisuse
	}
}
