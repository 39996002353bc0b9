package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ehrlich-b/tapectl/internal/keybuilder"
	"github.com/ehrlich-b/tapectl/internal/logger"
	"github.com/ehrlich-b/tapectl/internal/store"
	"github.com/ehrlich-b/tapectl/internal/tape"
	"github.com/spf13/cobra"
)

// tapesCmd groups the tape-maintenance subcommands (§6.3 "tapes"), none of
// which start a live or replay transport: they operate on a Store directly.
func tapesCmd() *cobra.Command {
	var tapesDir string
	cmd := &cobra.Command{
		Use:   "tapes",
		Short: "Inspect and maintain recorded tapes",
	}
	cmd.PersistentFlags().StringVar(&tapesDir, "tapes", "./tapes", "tapes root directory")

	cmd.AddCommand(
		tapesListCmd(&tapesDir),
		tapesValidateCmd(&tapesDir),
		tapesRedactCmd(&tapesDir),
		tapesDiffCmd(&tapesDir),
	)
	return cmd
}

func openStore(tapesDir string) (*store.Store, []store.LoadDiagnostic) {
	logger.Init(false, true, "")
	s := store.New(tapesDir, keybuilder.Policy{}, logger.Log)
	diags := s.LoadAll()
	s.BuildIndex()
	return s, diags
}

func tapesListCmd(tapesDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tapes under the tapes root",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, diags := openStore(*tapesDir)
			for _, d := range diags {
				fmt.Fprintf(os.Stderr, "warning: %s: %v\n", d.Path, d.Err)
			}
			for _, p := range s.AllPaths() {
				fmt.Println(p)
			}
			return nil
		},
	}
}

func tapesValidateCmd(tapesDir *string) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate every tape against the tape schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, diags := openStore(*tapesDir)
			for _, d := range diags {
				fmt.Fprintf(os.Stderr, "warning: %s: %v\n", d.Path, d.Err)
			}
			errs := s.Validate(strict)
			for _, e := range errs {
				fmt.Fprintf(os.Stderr, "%s: %v\n", e.Path, e.Err)
			}
			if len(errs) > 0 {
				return &tape.SchemaError{Path: errs[0].Path, Reason: errs[0].Err.Error()}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "also check raw tape bytes for unknown top-level keys")
	return cmd
}

func tapesRedactCmd(tapesDir *string) *cobra.Command {
	var inplace bool
	cmd := &cobra.Command{
		Use:   "redact",
		Short: "Scrub secret-shaped values out of every loaded tape",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, diags := openStore(*tapesDir)
			for _, d := range diags {
				fmt.Fprintf(os.Stderr, "warning: %s: %v\n", d.Path, d.Err)
			}
			return s.RedactAll(inplace)
		},
	}
	cmd.Flags().BoolVar(&inplace, "write", false, "rewrite modified tapes in place (default: report only)")
	return cmd
}

func tapesDiffCmd(tapesDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "diff TAPE_A TAPE_B",
		Short: "Compare two tapes' exchanges line by line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadTapeFile(*tapesDir, args[0])
			if err != nil {
				return err
			}
			b, err := loadTapeFile(*tapesDir, args[1])
			if err != nil {
				return err
			}
			w := bufio.NewWriter(os.Stdout)
			printTapeDiff(w, args[0], a, args[1], b)
			return nil
		},
	}
}

func loadTapeFile(tapesDir, name string) (*tape.Tape, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(tapesDir, name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &store.TapeIoError{Path: path, Op: "read", Err: err}
	}
	return tape.Decode(data)
}

// printTapeDiff renders a and b's exchanges as stable input/output lines
// (tape.Encode's key ordering is deterministic, so two tapes recorded from
// identical runs produce byte-identical lines here) and prints a unified
// +/- diff of the two line sets.
func printTapeDiff(w *bufio.Writer, nameA string, a *tape.Tape, nameB string, b *tape.Tape) {
	linesA := tapeLines(a)
	linesB := tapeLines(b)
	fmt.Fprintf(w, "--- %s\n+++ %s\n", nameA, nameB)
	max := len(linesA)
	if len(linesB) > max {
		max = len(linesB)
	}
	for i := 0; i < max; i++ {
		var la, lb string
		if i < len(linesA) {
			la = linesA[i]
		}
		if i < len(linesB) {
			lb = linesB[i]
		}
		if la == lb {
			fmt.Fprintf(w, "  %s\n", la)
			continue
		}
		if la != "" {
			fmt.Fprintf(w, "- %s\n", la)
		}
		if lb != "" {
			fmt.Fprintf(w, "+ %s\n", lb)
		}
	}
	w.Flush()
}

func tapeLines(t *tape.Tape) []string {
	var lines []string
	for i, ex := range t.Exchanges {
		lines = append(lines, fmt.Sprintf("[%d] > %s", i, string(ex.Input.AsBytes())))
		for _, chunk := range ex.Output {
			for _, ln := range bytes.Split(chunk.Data, []byte("\n")) {
				if len(ln) == 0 {
					continue
				}
				lines = append(lines, fmt.Sprintf("[%d] < %s", i, string(ln)))
			}
		}
	}
	return lines
}
