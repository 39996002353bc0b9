package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ehrlich-b/tapectl/internal/config"
	"github.com/ehrlich-b/tapectl/internal/keybuilder"
	"github.com/ehrlich-b/tapectl/internal/logger"
	"github.com/ehrlich-b/tapectl/internal/policy"
	"github.com/ehrlich-b/tapectl/internal/session"
	"github.com/ehrlich-b/tapectl/internal/store"
	"github.com/ehrlich-b/tapectl/internal/tape"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// sharedFlags holds the §6.3 flags common to rec/play/proxy.
type sharedFlags struct {
	tapesDir    string
	record      string
	fallback    string
	latency     string
	errorRate   int
	summary     bool
	summarySet  bool
	silent      bool
	debug       bool
	allowEnv    []string
	ignoreEnv   []string
	ignoreArgs  []string
	ignoreStdin bool
	name        string
}

func addSharedFlags(cmd *cobra.Command, f *sharedFlags) {
	cmd.Flags().StringVar(&f.tapesDir, "tapes", "", "tapes root directory (default ./tapes)")
	cmd.Flags().StringVar(&f.record, "record", "", "record mode: new|overwrite|disabled")
	cmd.Flags().StringVar(&f.fallback, "fallback", "", "fallback mode on tape miss: not_found|proxy")
	cmd.Flags().StringVar(&f.latency, "latency", "", "chunk latency in ms, or \"min,max\"")
	cmd.Flags().IntVar(&f.errorRate, "error-rate", -1, "synthetic error injection rate, 0-100")
	cmd.Flags().BoolVar(&f.summary, "summary", true, "print the new/unused tape summary on exit")
	cmd.Flags().BoolVar(&f.silent, "silent", false, "suppress diagnostic logging")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "enable debug-level logging")
	cmd.Flags().StringSliceVar(&f.allowEnv, "allow-env", nil, "only these env vars are part of the match key")
	cmd.Flags().StringSliceVar(&f.ignoreEnv, "ignore-env", nil, "env vars excluded from the match key")
	cmd.Flags().StringSliceVar(&f.ignoreArgs, "ignore-args", nil, "arg indices or literal values excluded from the match key")
	cmd.Flags().BoolVar(&f.ignoreStdin, "ignore-stdin", false, "exclude input bytes from the match key")
	cmd.Flags().StringVar(&f.name, "name", "", "tape file name (default: auto-generated)")

	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		f.summarySet = cmd.Flags().Changed("summary")
	}
}

// modeDefaults carries each subcommand's record/fallback defaults and any
// forced (non-overridable) values per §6.3 ("rec sets defaults...", "proxy
// forces...").
type modeDefaults struct {
	recordDefault   string
	fallbackDefault string
	forcedRecord    string // "" means not forced
	forcedFallback  string
}

// buildSessionConfig merges config-file defaults with flag overrides (flags
// win unless md forces a value), then assembles a session.Config for
// program/args.
func buildSessionConfig(f *sharedFlags, program string, args []string, md modeDefaults) (session.Config, error) {
	mgr := config.NewManager()
	userDir, _ := os.UserConfigDir()
	cwd, _ := os.Getwd()
	if err := mgr.Load(userDir, cwd); err != nil {
		return session.Config{}, err
	}
	fileCfg := mgr.Get()

	if err := logger.Init(f.debug, f.silent, ""); err != nil {
		return session.Config{}, err
	}

	tapesDir := firstNonEmpty(f.tapesDir, fileCfg.TapesDir, "./tapes")

	recordStr := md.forcedRecord
	if recordStr == "" {
		recordStr = firstNonEmpty(f.record, md.recordDefault, fileCfg.Record, "new")
	}
	recordMode, ok := tape.ParseRecordMode(recordStr)
	if !ok {
		return session.Config{}, fmt.Errorf("invalid --record %q", recordStr)
	}

	fallbackStr := md.forcedFallback
	if fallbackStr == "" {
		fallbackStr = firstNonEmpty(f.fallback, md.fallbackDefault, fileCfg.Fallback, "not_found")
	}
	fallbackMode, ok := tape.ParseFallbackMode(fallbackStr)
	if !ok {
		return session.Config{}, fmt.Errorf("invalid --fallback %q", fallbackStr)
	}

	lat, err := resolveLatency(f.latency, fileCfg.Latency)
	if err != nil {
		return session.Config{}, err
	}

	errRate := policy.ConstErrorRate(0)
	switch {
	case f.errorRate >= 0:
		errRate = policy.ConstErrorRate(uint8(f.errorRate))
	case fileCfg.ErrorRate != nil:
		errRate = policy.ConstErrorRate(*fileCfg.ErrorRate)
	}

	allowEnv := firstSlice(f.allowEnv, fileCfg.AllowEnv)
	ignoreEnv := firstSlice(f.ignoreEnv, fileCfg.IgnoreEnv)
	ignoreArgs := firstSlice(f.ignoreArgs, fileCfg.IgnoreArgs)
	ignoreStdin := f.ignoreStdin || fileCfg.IgnoreStdin

	printSummary := fileCfg.Summary == nil || *fileCfg.Summary
	if f.summarySet {
		printSummary = f.summary
	}

	var naming store.TapeNameGenerator
	if f.name != "" {
		naming = store.NamedNaming(f.name)
	}

	env := os.Environ()
	envMap := make(map[string]string, len(env))
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			envMap[k] = v
		}
	}

	cols, rows := 80, 24
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		if w, h, err := term.GetSize(fd); err == nil {
			cols, rows = w, h
		}
	}

	resolvedSeed := policy.ResolveSeed(nil, fileCfg.Seed, program, args, time.Now())

	redact := policy.RedactionFromEnv(os.LookupEnv).Enabled

	return session.Config{
		Program:    program,
		Args:       args,
		Env:        envMap,
		CWD:        cwd,
		Rows:       rows,
		Cols:       cols,
		TapesRoot:  tapesDir,
		RecordMode: recordMode,
		Fallback:   fallbackMode,
		Naming:     naming,
		KeyPolicy: keybuilder.Policy{
			AllowEnv:    allowEnv,
			IgnoreEnv:   ignoreEnv,
			IgnoreArgs:  ignoreArgs,
			IgnoreStdin: ignoreStdin,
		},
		Latency:      lat,
		ErrorRate:    errRate,
		Seed:         resolvedSeed,
		Redact:       redact,
		PrintSummary: printSummary,
		SummaryOut:   os.Stdout,
		Logger:       logger.Log,
	}, nil
}

func resolveLatency(flagVal string, fileVal *config.Latency) (policy.Latency, error) {
	if flagVal != "" {
		if strings.Contains(flagVal, ",") {
			parts := strings.SplitN(flagVal, ",", 2)
			lo, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
			hi, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err1 != nil || err2 != nil {
				return policy.Latency{}, fmt.Errorf("invalid --latency %q", flagVal)
			}
			return policy.RangeLatency(uint32(lo), uint32(hi)), nil
		}
		n, err := strconv.Atoi(flagVal)
		if err != nil {
			return policy.Latency{}, fmt.Errorf("invalid --latency %q", flagVal)
		}
		return policy.ConstLatency(uint32(n)), nil
	}
	if fileVal != nil {
		if fileVal.HasRange {
			return policy.RangeLatency(uint32(fileVal.Min), uint32(fileVal.Max)), nil
		}
		return policy.ConstLatency(uint32(fileVal.Const)), nil
	}
	return policy.ConstLatency(0), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstSlice(a, b []string) []string {
	if len(a) > 0 {
		return a
	}
	return b
}
