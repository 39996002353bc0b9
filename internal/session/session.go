// Package session implements the Session Facade (§4.9): it selects a live
// or replay transport per the configured record mode, wires the Recorder
// and Store into the live path, and exposes a single send/expect/close
// surface to callers regardless of which transport is underneath.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ehrlich-b/tapectl/internal/keybuilder"
	"github.com/ehrlich-b/tapectl/internal/livechild"
	"github.com/ehrlich-b/tapectl/internal/policy"
	"github.com/ehrlich-b/tapectl/internal/recorder"
	"github.com/ehrlich-b/tapectl/internal/replay"
	"github.com/ehrlich-b/tapectl/internal/store"
	"github.com/ehrlich-b/tapectl/internal/summary"
	"github.com/ehrlich-b/tapectl/internal/tape"
	"github.com/ehrlich-b/tapectl/internal/transport"
)

// TerminateGrace bounds how long Close waits for a live child to exit on
// its own SIGTERM before escalating, mirroring livechild's own grace
// period so the facade never blocks longer than the child it owns.
const TerminateGrace = 5 * time.Second

// Config configures a Session at construction (§4.9 "Construction").
type Config struct {
	Program string
	Args    []string
	Env     map[string]string
	CWD     string
	Rows    int
	Cols    int

	TapesRoot  string
	RecordMode tape.RecordMode
	Fallback   tape.FallbackMode
	Naming     store.TapeNameGenerator

	KeyPolicy keybuilder.Policy

	Latency       policy.Latency
	ErrorRate     policy.ErrorRate
	InjectionMode policy.InjectionMode
	ExitCodeOnErr int
	Seed          uint64

	Redact          bool
	InputDecorator  recorder.InputDecorator
	OutputDecorator recorder.OutputDecorator
	TapeDecorator   recorder.TapeDecorator

	SessionInfo tape.SessionInfo

	PrintSummary bool
	SummaryOut   interface {
		Write(p []byte) (int, error)
	}

	Logger *slog.Logger
}

// Session is a single target-program invocation, live or replayed.
type Session struct {
	cfg   Config
	store *store.Store

	mu           sync.Mutex
	closed       bool
	exchangeOpen bool

	// live path
	child    *livechild.Process
	liveT    *transport.LiveTransport
	recorder *recorder.Recorder

	// replay path
	replayT *replay.Transport

	// current transport, selected at construction or mid-session on a
	// replay miss with PROXY fallback
	current transport.Transport
	live    bool
}

// New constructs a Session per §4.9's construction steps: it builds and
// indexes the Store, then either starts a Replay Transport (record mode
// disabled) or spawns a live child with a Recorder attached.
func New(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Naming == nil {
		cfg.Naming = store.DefaultNaming()
	}

	s := store.New(cfg.TapesRoot, cfg.KeyPolicy, cfg.Logger)
	s.LoadAll()
	s.BuildIndex()

	sess := &Session{cfg: cfg, store: s}

	if cfg.RecordMode == tape.RecordDisabled {
		sess.replayT = replay.New(s, replayConfig(cfg))
		sess.current = sess.replayT
		sess.live = false
		sess.captureStartupBanner()
		return sess, nil
	}

	if err := sess.startLiveChild(ctx); err != nil {
		return nil, err
	}
	sess.captureStartupBanner()
	return sess, nil
}

func replayConfig(cfg Config) replay.Config {
	return replay.Config{
		Program:       cfg.Program,
		Args:          cfg.Args,
		Env:           cfg.Env,
		CWD:           cfg.CWD,
		Rows:          cfg.Rows,
		Cols:          cfg.Cols,
		Fallback:      cfg.Fallback,
		KeyPolicy:     cfg.KeyPolicy,
		Latency:       cfg.Latency,
		ErrorRate:     cfg.ErrorRate,
		InjectionMode: cfg.InjectionMode,
		ExitCodeOnErr: cfg.ExitCodeOnErr,
		Seed:          cfg.Seed,
	}
}

func (s *Session) startLiveChild(ctx context.Context) error {
	child, err := livechild.Start(ctx, s.cfg.Program, s.cfg.Args, s.cfg.Env, s.cfg.CWD, s.cfg.Rows, s.cfg.Cols)
	if err != nil {
		return err
	}
	s.child = child

	sink := recorder.NewChunkSink()
	s.liveT = transport.NewLiveTransport(child, sink, s.cfg.Rows, s.cfg.Cols)

	opts := []recorder.Option{recorder.WithRedaction(s.cfg.Redact)}
	if s.cfg.InputDecorator != nil {
		opts = append(opts, recorder.WithInputDecorator(s.cfg.InputDecorator))
	}
	if s.cfg.OutputDecorator != nil {
		opts = append(opts, recorder.WithOutputDecorator(s.cfg.OutputDecorator))
	}
	if s.cfg.TapeDecorator != nil {
		opts = append(opts, recorder.WithTapeDecorator(s.cfg.TapeDecorator))
	}
	s.recorder = recorder.New(sink, s.cfg.Logger, opts...)

	s.current = s.liveT
	s.live = true
	return nil
}

// captureStartupBanner records the implicit startup exchange (§4.9 step 4):
// an empty Raw([]) input whose output collects whatever the child (or
// replayed tape) emits before the caller's first Send/Expect.
func (s *Session) captureStartupBanner() {
	if s.live {
		s.recorder.OnSend(s.liveCtx(), nil, tape.Raw)
		s.exchangeOpen = true
	}
	// Replay has no banner exchange to key against; the first real Send
	// is what drives a lookup. Nothing to do here for replay.
}

// liveCtx snapshots the current keybuilder.Context for the live transport,
// including the current prompt line from its mirrored screen (§4.5
// "pre.prompt"), matching how replay.Transport derives Prompt from its own
// screen for the same key.
func (s *Session) liveCtx() keybuilder.Context {
	ctx := keybuilder.Context{
		Program: s.cfg.Program,
		Args:    s.cfg.Args,
		Env:     s.cfg.Env,
		CWD:     s.cfg.CWD,
	}
	if s.liveT != nil {
		ctx.Prompt = s.liveT.CurrentLine()
	}
	return ctx
}

// Send forwards caller input through the active transport, recording it
// first when live.
func (s *Session) Send(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live {
		s.recorder.OnSend(s.liveCtx(), b, tape.Raw)
		s.exchangeOpen = true
	}
	n, err := s.current.Send(b)
	if err == nil {
		return n, nil
	}
	return s.handleSendErr(b, "", tape.Raw, err)
}

// SendLine forwards a newline-terminated line through the active transport.
func (s *Session) SendLine(line string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live {
		s.recorder.OnSend(s.liveCtx(), []byte(line), tape.Line)
		s.exchangeOpen = true
	}
	n, err := s.current.SendLine(line)
	if err == nil {
		return n, nil
	}
	return s.handleSendErr(nil, line, tape.Line, err)
}

// handleSendErr implements the replay-miss PROXY handoff (§4.9 "Send
// path"): on a TapeMissError whose Fallback is PROXY, spawn a live child,
// attach a Recorder, and replay the failed send against it so the session
// continues live for its remainder.
func (s *Session) handleSendErr(raw []byte, line string, kind tape.InputKind, sendErr error) (int, error) {
	miss, ok := sendErr.(*replay.TapeMissError)
	if !ok || s.live || miss.Fallback != tape.FallbackProxy {
		return 0, sendErr
	}

	if err := s.startLiveChild(context.Background()); err != nil {
		return 0, err
	}

	s.exchangeOpen = true
	if kind == tape.Line {
		s.recorder.OnSend(s.liveCtx(), []byte(line), tape.Line)
		return s.current.SendLine(line)
	}
	s.recorder.OnSend(s.liveCtx(), raw, tape.Raw)
	return s.current.Send(raw)
}

// Expect forwards to the active transport and, when live, signals the
// Recorder that the in-flight exchange ended.
func (s *Session) Expect(patterns []transport.Pattern, timeoutMS int) (int, error) {
	s.mu.Lock()
	cur := s.current
	live := s.live
	s.mu.Unlock()

	idx, err := cur.Expect(patterns, timeoutMS)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !live {
		return idx, err
	}
	s.recorder.OnExchangeEnd(s.liveCtx(), endReasonFor(s.liveT, err))
	s.exchangeOpen = false
	return idx, err
}

// FlushExchange closes out the in-flight exchange if one is open, without
// waiting for a caller Expect. Used by the CLI's attach loop to segment
// exchanges on output idle rather than collapsing a whole interactive
// session into one exchange (§4.5).
func (s *Session) FlushExchange() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live || !s.exchangeOpen {
		return
	}
	s.recorder.OnExchangeEnd(s.liveCtx(), recorder.EndReason{Kind: recorder.PromptMatched})
	s.exchangeOpen = false
}

// LastOutputAt reports when the live transport last read output from the
// child, the idle-timeout clock FlushExchange's caller measures against.
// It returns the zero Time for a replay session, which has no idle child.
func (s *Session) LastOutputAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return time.Time{}
	}
	return s.liveT.LastActivity()
}

// ExpectExact is Expect specialised to literal patterns.
func (s *Session) ExpectExact(literals []string, timeoutMS int) (int, error) {
	patterns := make([]transport.Pattern, len(literals))
	for i, l := range literals {
		patterns[i] = transport.LiteralPattern(l)
	}
	return s.Expect(patterns, timeoutMS)
}

func endReasonFor(lt *transport.LiveTransport, expectErr error) recorder.EndReason {
	if status, ok := lt.ExitStatus(); ok {
		return recorder.EndReason{Kind: recorder.ChildExited, Code: status.Code, Signal: status.Signal}
	}
	if expectErr != nil {
		return recorder.EndReason{Kind: recorder.Timeout}
	}
	return recorder.EndReason{Kind: recorder.PromptMatched}
}

// IsAlive reports whether the active transport still has a live process or
// undrained replay stream behind it.
func (s *Session) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.IsAlive()
}

// Before, After, MatchSpan, and ExitStatus expose the active transport's
// last-match state, matching the shared Transport contract (§6.2).
func (s *Session) Before() []byte                           { return s.current.Before() }
func (s *Session) After() []byte                            { return s.current.After() }
func (s *Session) MatchSpan() [2]int                         { return s.current.MatchSpan() }
func (s *Session) ExitStatus() (transport.ExitStatus, bool)  { return s.current.ExitStatus() }

// SetLogfileRead installs a tee sink on the active transport (§6.2).
func (s *Session) SetLogfileRead(sink transport.LogSink) {
	s.current.SetLogfileRead(sink)
}

// Resize forwards a terminal resize to the live child's PTY, if any. It is
// a no-op against a replay transport, which has no real PTY to resize.
func (s *Session) Resize(rows, cols int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return nil
	}
	return s.liveT.Resize(rows, cols)
}

// Store exposes the underlying Store, e.g. for `tapes` subcommands that
// want to inspect a session's tapes root without starting a child.
func (s *Session) Store() *store.Store { return s.store }

// Close terminates the live child (if any) and finalizes its tape, or
// simply closes the replay transport, then prints the Exit Summary if
// enabled. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	live := s.live
	s.mu.Unlock()

	var closeErr error
	if live {
		code, sig, err := s.child.Terminate(TerminateGrace)
		closeErr = err
		reason := recorder.EndReason{Kind: recorder.ChildExited, Code: code, Signal: sig}
		s.recorder.OnExchangeEnd(s.liveCtx(), reason)

		meta := tape.TapeMeta{
			CreatedAt: time.Now().UTC(),
			Program:   s.cfg.Program,
			Args:      s.cfg.Args,
			Env:       filteredMetaEnv(s.cfg),
			CWD:       s.cfg.CWD,
			PTY:       tape.PTYSize{Rows: s.cfg.Rows, Cols: s.cfg.Cols},
		}
		if err := s.recorder.Finalize(s.liveCtx(), meta, s.cfg.SessionInfo, s.store, recorder.NamingFunc(s.cfg.Naming), s.cfg.RecordMode); err != nil && closeErr == nil {
			closeErr = err
		}
	} else {
		if err := s.replayT.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
	}

	if s.cfg.PrintSummary && s.cfg.SummaryOut != nil {
		summary.Render(s.cfg.SummaryOut, summary.PathSets{
			All:  s.store.AllPaths(),
			Used: s.store.UsedPaths(),
			New:  s.store.NewPaths(),
		})
	}

	return closeErr
}

func filteredMetaEnv(cfg Config) map[string]string {
	if len(cfg.KeyPolicy.AllowEnv) == 0 && len(cfg.KeyPolicy.IgnoreEnv) == 0 {
		return cfg.Env
	}
	out := make(map[string]string)
	ignore := make(map[string]bool, len(cfg.KeyPolicy.IgnoreEnv))
	for _, k := range cfg.KeyPolicy.IgnoreEnv {
		ignore[k] = true
	}
	allow := make(map[string]bool, len(cfg.KeyPolicy.AllowEnv))
	for _, k := range cfg.KeyPolicy.AllowEnv {
		allow[k] = true
	}
	for k, v := range cfg.Env {
		if len(cfg.KeyPolicy.AllowEnv) > 0 {
			if allow[k] {
				out[k] = v
			}
			continue
		}
		if !ignore[k] {
			out[k] = v
		}
	}
	return out
}
