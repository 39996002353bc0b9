// Package keybuilder computes the deterministic lookup key the Store uses
// to match a live input against recorded exchanges (§4.3 build_key).
package keybuilder

import (
	"hash/maphash"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ehrlich-b/tapectl/internal/normalize"
	"github.com/ehrlich-b/tapectl/internal/tape"
)

// NormalizedKey is the 128-bit fingerprint used as the index's map key.
// Two independently-seeded 64-bit sums stand in for a single 128-bit
// non-cryptographic hash; hash/maphash is the only seeded non-cryptographic
// hash available without pulling in a library never exercised elsewhere in
// this codebase for this narrow a purpose.
type NormalizedKey [16]byte

// seedLo and seedHi are fixed for the process lifetime: chosen once at
// package init and reused for every BuildKey call, so that a key computed
// while building the index and a key computed while matching a live send
// agree within a single run. maphash.Seed values are opaque and cannot be
// constructed from caller-supplied bits, so "fixed seed" here means "fixed
// for the process", not "fixed across process invocations" — the Store's
// index is always rebuilt fresh within one process, so that's sufficient.
var (
	seedLo = maphash.MakeSeed()
	seedHi = maphash.MakeSeed()
)

// CommandMatcher canonicalizes (program, args) into a matcher-specific
// representation, replacing the default basename+filtered-args handling.
type CommandMatcher func(program string, args []string) (string, []string)

// StdinMatcher canonicalizes input bytes, replacing the default
// strip-trailing-newline handling.
type StdinMatcher func(input tape.Input) []byte

// Policy controls which parts of the context feed the key.
type Policy struct {
	AllowEnv       []string // if non-nil, only these env keys are included
	IgnoreEnv      []string
	IgnoreArgs     []string // entries are either a decimal index or a literal arg value; "cwd" ignores cwd
	IgnoreStdin    bool
	CommandMatcher CommandMatcher
	StdinMatcher   StdinMatcher
}

// Context is the information available at match time, whether building the
// index from a loaded tape or matching a live send.
type Context struct {
	Program   string
	Args      []string
	Env       map[string]string
	CWD       string
	Prompt    string
	StateHash string
}

const fieldSep = 0x1F

// BuildKey computes the normalized key for ctx+input under policy.
func BuildKey(ctx Context, input tape.Input, policy Policy) NormalizedKey {
	var h1, h2 maphash.Hash
	h1.SetSeed(seedLo)
	h2.SetSeed(seedHi)

	write := func(b []byte) {
		h1.Write(b)
		h2.Write(b)
	}
	sep := func() {
		h1.WriteByte(fieldSep)
		h2.WriteByte(fieldSep)
	}

	program, args := canonicalizeCommand(ctx, policy)
	write([]byte(program))
	sep()
	for _, a := range args {
		write([]byte(a))
	}
	sep()
	write([]byte(filteredEnvString(ctx.Env, policy)))
	sep()
	if !ignoresCWD(policy) {
		write([]byte(ctx.CWD))
	}
	sep()
	write([]byte(normalizedPrompt(ctx.Prompt)))
	sep()
	write(inputBytes(input, policy))
	sep()
	write([]byte(ctx.StateHash))

	var out NormalizedKey
	copy(out[0:8], appendUint64(nil, h1.Sum64()))
	copy(out[8:16], appendUint64(nil, h2.Sum64()))
	return out
}

func appendUint64(buf []byte, v uint64) []byte {
	for i := 7; i >= 0; i-- {
		buf = append(buf, byte(v>>(8*uint(i))))
	}
	return buf
}

func canonicalizeCommand(ctx Context, policy Policy) (string, []string) {
	if policy.CommandMatcher != nil {
		return policy.CommandMatcher(ctx.Program, ctx.Args)
	}
	program := filepath.Base(ctx.Program)
	if len(policy.IgnoreArgs) == 0 {
		return program, ctx.Args
	}
	ignoreIdx := map[int]bool{}
	ignoreVal := map[string]bool{}
	for _, e := range policy.IgnoreArgs {
		if e == "cwd" {
			continue
		}
		if n, err := strconv.Atoi(e); err == nil {
			ignoreIdx[n] = true
			continue
		}
		ignoreVal[e] = true
	}
	args := make([]string, 0, len(ctx.Args))
	for i, a := range ctx.Args {
		if ignoreIdx[i] || ignoreVal[a] {
			continue
		}
		args = append(args, a)
	}
	return program, args
}

func ignoresCWD(policy Policy) bool {
	for _, e := range policy.IgnoreArgs {
		if e == "cwd" {
			return true
		}
	}
	return false
}

func filteredEnvString(env map[string]string, policy Policy) string {
	keep := make(map[string]bool, len(env))
	if policy.AllowEnv != nil {
		allow := make(map[string]bool, len(policy.AllowEnv))
		for _, k := range policy.AllowEnv {
			allow[k] = true
		}
		for k := range env {
			if allow[k] {
				keep[k] = true
			}
		}
	} else {
		ignore := make(map[string]bool, len(policy.IgnoreEnv))
		for _, k := range policy.IgnoreEnv {
			ignore[k] = true
		}
		for k := range env {
			if !ignore[k] {
				keep[k] = true
			}
		}
	}
	keys := make([]string, 0, len(keep))
	for k := range keep {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(env[k])
		sb.WriteByte(fieldSep)
	}
	return sb.String()
}

func normalizedPrompt(prompt string) string {
	return string(normalize.CollapseWS(normalize.StripANSI([]byte(prompt))))
}

func inputBytes(input tape.Input, policy Policy) []byte {
	if policy.IgnoreStdin {
		return nil
	}
	if policy.StdinMatcher != nil {
		return policy.StdinMatcher(input)
	}
	if input.Kind == tape.Line {
		return []byte(tape.StripTrailingNewline(input.Text))
	}
	return input.Bytes
}
