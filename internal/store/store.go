// Package store loads, indexes, and persists tapes under a tapes root
// directory (§4.4).
package store

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ehrlich-b/tapectl/internal/keybuilder"
	"github.com/ehrlich-b/tapectl/internal/normalize"
	"github.com/ehrlich-b/tapectl/internal/tape"
)

// LockRetryBudget bounds how long WriteTape retries lock acquisition
// before surfacing TapeLockError.
const LockRetryBudget = 2 * time.Second

// LoadedTape pairs a decoded tape with the path it was loaded from,
// relative to the tapes root.
type LoadedTape struct {
	Path string
	Tape *tape.Tape
}

type matchRef struct {
	tapeIdx, exchangeIdx int
}

// LoadDiagnostic reports a tape that failed to decode during LoadAll; load
// continues with the remaining files (§4.4, §7).
type LoadDiagnostic struct {
	Path string
	Err  error
}

// Store owns the in-memory view of every tape under root plus the lookup
// index built from it.
type Store struct {
	root   string
	policy keybuilder.Policy
	logger *slog.Logger

	mu       sync.RWMutex
	tapes    []LoadedTape
	index    map[keybuilder.NormalizedKey]matchRef
	used     map[string]bool
	newPaths map[string]bool
}

// New constructs an empty Store rooted at root.
func New(root string, policy keybuilder.Policy, logger *slog.Logger) *Store {
	return &Store{
		root:     root,
		policy:   policy,
		logger:   logger,
		index:    make(map[keybuilder.NormalizedKey]matchRef),
		used:     make(map[string]bool),
		newPaths: make(map[string]bool),
	}
}

// Root returns the tapes root directory.
func (s *Store) Root() string { return s.root }

// LoadAll walks root recursively for *.json5 files, decoding each. Schema
// errors are collected as diagnostics and do not abort the walk.
func (s *Store) LoadAll() []LoadDiagnostic {
	var diags []LoadDiagnostic
	var loaded []LoadedTape

	_ = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			diags = append(diags, LoadDiagnostic{Path: path, Err: err})
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json5") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			diags = append(diags, LoadDiagnostic{Path: path, Err: err})
			return nil
		}
		t, err := tape.Decode(data)
		if err != nil {
			diags = append(diags, LoadDiagnostic{Path: path, Err: err})
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			rel = path
		}
		loaded = append(loaded, LoadedTape{Path: rel, Tape: t})
		return nil
	})

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Path < loaded[j].Path })

	s.mu.Lock()
	s.tapes = loaded
	s.mu.Unlock()

	return diags
}

// BuildIndex computes a lookup key for every exchange across every loaded
// tape and inserts it into the index. Duplicate keys are logged; the first
// occurrence (in tape load order, then exchange order) wins.
func (s *Store) BuildIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index = make(map[keybuilder.NormalizedKey]matchRef)
	for ti, lt := range s.tapes {
		for ei, ex := range lt.Tape.Exchanges {
			ctx := keybuilder.Context{
				Program:   lt.Tape.Meta.Program,
				Args:      lt.Tape.Meta.Args,
				Env:       lt.Tape.Meta.Env,
				CWD:       lt.Tape.Meta.CWD,
				Prompt:    ex.Pre.Prompt,
				StateHash: ex.Pre.StateHash,
			}
			key := keybuilder.BuildKey(ctx, ex.Input, s.policy)
			if _, exists := s.index[key]; exists {
				if s.logger != nil {
					s.logger.Warn("duplicate tape key, keeping first match", "path", lt.Path, "exchange", ei)
				}
				continue
			}
			s.index[key] = matchRef{tapeIdx: ti, exchangeIdx: ei}
		}
	}
}

// FindMatch looks up the exchange matching ctx+input, if any.
func (s *Store) FindMatch(ctx keybuilder.Context, input tape.Input) (tapeIdx, exchangeIdx int, ok bool) {
	key := keybuilder.BuildKey(ctx, input, s.policy)
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, found := s.index[key]
	if !found {
		return 0, 0, false
	}
	return ref.tapeIdx, ref.exchangeIdx, true
}

// Tape returns the loaded tape at idx.
func (s *Store) Tape(idx int) LoadedTape {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tapes[idx]
}

// MarkUsed records that the tape at path was matched during this session.
func (s *Store) MarkUsed(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used[path] = true
}

// MarkNew records that path was newly written during this session.
func (s *Store) MarkNew(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newPaths[path] = true
}

// AllPaths, UsedPaths, and NewPaths back the Exit Summary (§4.8).
func (s *Store) AllPaths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tapes))
	for _, lt := range s.tapes {
		out = append(out, lt.Path)
	}
	return out
}

func (s *Store) UsedPaths() []string { return setKeys(s.used, &s.mu) }
func (s *Store) NewPaths() []string  { return setKeys(s.newPaths, &s.mu) }

func setKeys(m map[string]bool, mu *sync.RWMutex) []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// WriteTape atomically persists t at root/path. On RecordNew, if a tape
// already exists there, its exchanges are merged with t's (deduplicated by
// key, existing first); on RecordOverwrite the file is replaced wholesale.
// RecordDisabled performs no I/O.
func (s *Store) WriteTape(relPath string, t *tape.Tape, mode tape.RecordMode) error {
	if mode == tape.RecordDisabled {
		return nil
	}

	fullPath := filepath.Join(s.root, relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return &TapeIoError{Path: fullPath, Op: "mkdir", Err: err}
	}

	lock, err := acquireLock(fullPath, LockRetryBudget)
	if err != nil {
		return err
	}
	defer lock.release()

	_, statErr := os.Stat(fullPath)
	existed := statErr == nil

	final := t
	if mode == tape.RecordNew && existed {
		existingData, err := os.ReadFile(fullPath)
		if err != nil {
			return &TapeIoError{Path: fullPath, Op: "read", Err: err}
		}
		existing, err := tape.Decode(existingData)
		if err != nil {
			return &tape.SchemaError{Path: fullPath, Reason: err.Error()}
		}
		final = mergeTapes(existing, t, s.policy)
	}

	encoded, err := tape.Encode(final)
	if err != nil {
		return &TapeIoError{Path: fullPath, Op: "encode", Err: err}
	}

	if err := atomicWrite(fullPath, encoded); err != nil {
		return err
	}

	if !existed {
		s.MarkNew(relPath)
	}
	return nil
}

// mergeTapes appends new's exchanges that don't already exist (by key) in
// existing, in insertion order.
func mergeTapes(existing, incoming *tape.Tape, policy keybuilder.Policy) *tape.Tape {
	seen := make(map[keybuilder.NormalizedKey]bool, len(existing.Exchanges))
	keyFor := func(meta tape.TapeMeta, ex tape.Exchange) keybuilder.NormalizedKey {
		ctx := keybuilder.Context{
			Program: meta.Program, Args: meta.Args, Env: meta.Env, CWD: meta.CWD,
			Prompt: ex.Pre.Prompt, StateHash: ex.Pre.StateHash,
		}
		return keybuilder.BuildKey(ctx, ex.Input, policy)
	}
	for _, ex := range existing.Exchanges {
		seen[keyFor(existing.Meta, ex)] = true
	}
	merged := append([]tape.Exchange(nil), existing.Exchanges...)
	for _, ex := range incoming.Exchanges {
		k := keyFor(incoming.Meta, ex)
		if seen[k] {
			continue
		}
		seen[k] = true
		merged = append(merged, ex)
	}
	out := *existing
	out.Exchanges = merged
	return &out
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return &TapeIoError{Path: tmp, Op: "create", Err: err}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return &TapeIoError{Path: tmp, Op: "write", Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return &TapeIoError{Path: tmp, Op: "fsync", Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &TapeIoError{Path: tmp, Op: "close", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &TapeIoError{Path: path, Op: "rename", Err: err}
	}
	return nil
}

// NearestMatch is one candidate in a TapeMiss diagnostic: a stored key
// along with how far it is (in Hamming distance over the key's bits) from
// the key that failed to match.
type NearestMatch struct {
	Path        string
	ExchangeIdx int
	Distance    int
}

// NearestKeys returns up to n loaded keys ordered by ascending Hamming
// distance from target, for TapeMissError diagnostics (§4.6, §7).
func (s *Store) NearestKeys(target keybuilder.NormalizedKey, n int) []NearestMatch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]NearestMatch, 0, len(s.index))
	for key, ref := range s.index {
		candidates = append(candidates, NearestMatch{
			Path:        s.tapes[ref.tapeIdx].Path,
			ExchangeIdx: ref.exchangeIdx,
			Distance:    hammingDistance(key, target),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		if candidates[i].Path != candidates[j].Path {
			return candidates[i].Path < candidates[j].Path
		}
		return candidates[i].ExchangeIdx < candidates[j].ExchangeIdx
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

func hammingDistance(a, b keybuilder.NormalizedKey) int {
	dist := 0
	for i := range a {
		x := a[i] ^ b[i]
		for x != 0 {
			dist += int(x & 1)
			x >>= 1
		}
	}
	return dist
}

// PathError pairs a tape path with the schema error found in it.
type PathError struct {
	Path string
	Err  error
}

// Validate returns every loaded tape failing schema validation. strict
// additionally re-checks each tape's raw bytes for unknown top-level keys.
func (s *Store) Validate(strict bool) []PathError {
	s.mu.RLock()
	tapes := append([]LoadedTape(nil), s.tapes...)
	s.mu.RUnlock()

	var out []PathError
	for _, lt := range tapes {
		for _, err := range tape.Validate(lt.Tape) {
			out = append(out, PathError{Path: lt.Path, Err: err})
		}
		if strict {
			fullPath := filepath.Join(s.root, lt.Path)
			data, err := os.ReadFile(fullPath)
			if err != nil {
				out = append(out, PathError{Path: lt.Path, Err: err})
				continue
			}
			for _, err := range tape.ValidateRaw(data, true) {
				out = append(out, PathError{Path: lt.Path, Err: err})
			}
		}
	}
	return out
}

// RedactAll applies RedactSecrets to every loaded tape's input and output.
// When inplace is true, each modified tape is re-written atomically.
func (s *Store) RedactAll(inplace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.tapes {
		t := s.tapes[i].Tape
		changed := false
		for ei := range t.Exchanges {
			ex := &t.Exchanges[ei]
			if ex.Input.Kind == tape.Line {
				red := string(normalize.RedactSecrets([]byte(ex.Input.Text)))
				if red != ex.Input.Text {
					ex.Input.Text = red
					changed = true
				}
			} else {
				red := normalize.RedactSecrets(ex.Input.Bytes)
				if string(red) != string(ex.Input.Bytes) {
					ex.Input.Bytes = red
					changed = true
				}
			}
			for ci := range ex.Output {
				red := normalize.RedactSecrets(ex.Output[ci].Data)
				if string(red) != string(ex.Output[ci].Data) {
					ex.Output[ci].Data = red
					changed = true
				}
			}
		}
		if changed && inplace {
			fullPath := filepath.Join(s.root, s.tapes[i].Path)
			encoded, err := tape.Encode(t)
			if err != nil {
				return &RedactionError{Path: s.tapes[i].Path, Reason: err.Error()}
			}
			lock, err := acquireLock(fullPath, LockRetryBudget)
			if err != nil {
				return err
			}
			werr := atomicWrite(fullPath, encoded)
			lock.release()
			if werr != nil {
				return werr
			}
		}
	}
	return nil
}
