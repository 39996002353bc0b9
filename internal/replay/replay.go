// Package replay implements the Replay Transport (§4.6): a stand-in for a
// live child that streams previously recorded exchanges back to the
// caller, paced by a latency policy and optionally perturbed by a
// deterministic fault-injection policy.
package replay

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ehrlich-b/tapectl/internal/keybuilder"
	"github.com/ehrlich-b/tapectl/internal/policy"
	"github.com/ehrlich-b/tapectl/internal/store"
	"github.com/ehrlich-b/tapectl/internal/tape"
	"github.com/ehrlich-b/tapectl/internal/transport"
	"github.com/ehrlich-b/tapectl/internal/vt"
)

type state int

const (
	stateIdle state = iota
	stateStreaming
	stateDrained
	stateClosed
)

// TapeMissError reports a replay lookup that found no recorded exchange,
// carrying enough context for an actionable CLI diagnostic.
type TapeMissError struct {
	Program  string
	Args     []string
	Prompt   string
	Input    string
	Nearest  []store.NearestMatch
	Fallback tape.FallbackMode
}

func (e *TapeMissError) Error() string {
	return fmt.Sprintf("tape miss: program=%s prompt=%q input=%q (%d nearby keys)", e.Program, e.Prompt, e.Input, len(e.Nearest))
}

// InjectedError reports a deterministically-injected synthetic failure
// during replay (§4.6 "Error injection").
type InjectedError struct {
	AtExchange int
}

func (e *InjectedError) Error() string {
	return fmt.Sprintf("injected error at exchange %d", e.AtExchange)
}

// Config configures a Transport at construction. Static fields (Program,
// Args, Env, CWD) describe the session; the current prompt is tracked
// internally from emitted output.
type Config struct {
	Program  string
	Args     []string
	Env      map[string]string
	CWD      string
	Rows     int
	Cols     int
	Fallback tape.FallbackMode

	KeyPolicy keybuilder.Policy

	Latency       policy.Latency
	ErrorRate     policy.ErrorRate
	InjectionMode policy.InjectionMode
	ExitCodeOnErr int
	Seed          uint64
}

// Transport implements transport.Transport by replaying exchanges out of a
// Store.
type Transport struct {
	store  *store.Store
	cfg    Config
	screen *vt.PromptScreen
	rng    *rand.Rand

	mu        sync.Mutex
	st        state
	buf       []byte
	consumed  int
	before    []byte
	after     []byte
	matchSpan [2]int
	newData   chan struct{}
	streaming bool
	pendingErr error
	exitStatus *transport.ExitStatus
	exchangeIdx int

	logSink transport.LogSink
}

// New builds a Transport bound to s, resolving state from cfg.
func New(s *store.Store, cfg Config) *Transport {
	return &Transport{
		store:   s,
		cfg:     cfg,
		screen:  vt.New(cfg.Cols, cfg.Rows),
		rng:     policy.NewRNG(cfg.Seed),
		newData: make(chan struct{}),
	}
}

func (t *Transport) currentCtx() keybuilder.Context {
	return keybuilder.Context{
		Program: t.cfg.Program,
		Args:    t.cfg.Args,
		Env:     t.cfg.Env,
		CWD:     t.cfg.CWD,
		Prompt:  t.screen.CurrentLine(),
	}
}

func (t *Transport) Send(b []byte) (int, error) {
	return t.send(tape.NewRawInput(b))
}

func (t *Transport) SendLine(s string) (int, error) {
	return t.send(tape.NewLineInput(s))
}

func (t *Transport) send(input tape.Input) (int, error) {
	t.mu.Lock()
	if t.st == stateClosed {
		t.mu.Unlock()
		return 0, errors.New("replay: transport closed")
	}
	ctx := t.currentCtx()
	t.mu.Unlock()

	tapeIdx, exIdx, ok := t.store.FindMatch(ctx, input)
	if !ok {
		key := keybuilder.BuildKey(ctx, input, t.cfg.KeyPolicy)
		return 0, &TapeMissError{
			Program:  ctx.Program,
			Args:     ctx.Args,
			Prompt:   ctx.Prompt,
			Input:    string(input.AsBytes()),
			Nearest:  t.store.NearestKeys(key, 3),
			Fallback: t.cfg.Fallback,
		}
	}

	lt := t.store.Tape(tapeIdx)
	t.store.MarkUsed(lt.Path)
	exchange := lt.Tape.Exchanges[exIdx]

	t.mu.Lock()
	t.st = stateStreaming
	t.buf = nil
	t.consumed = 0
	t.pendingErr = nil
	t.exchangeIdx = exIdx
	t.streaming = true
	t.mu.Unlock()

	go t.stream(exchange, exIdx)

	return len(input.AsBytes()), nil
}

func (t *Transport) stream(ex tape.Exchange, exIdx int) {
	ctx := policy.MatchingContext{Program: t.cfg.Program, Args: t.cfg.Args}
	for i, chunk := range ex.Output {
		if i > 0 && policy.ShouldInject(t.cfg.ErrorRate.Resolve(ctx), t.rng) {
			if t.cfg.InjectionMode == policy.LatchExitCode {
				code := t.cfg.ExitCodeOnErr
				if code == 0 {
					code = 1
				}
				t.finishStream(&transport.ExitStatus{Code: code}, nil, true)
				return
			}
			t.finishStream(nil, &InjectedError{AtExchange: exIdx}, true)
			return
		}
		delay := t.cfg.Latency.Resolve(ctx, t.rng, chunk.DelayMS)
		time.Sleep(time.Duration(delay) * time.Millisecond)

		t.mu.Lock()
		t.buf = append(t.buf, chunk.Data...)
		t.mu.Unlock()
		t.screen.Write(chunk.Data)
		if t.logSink != nil {
			t.logSink.Write(chunk.Data)
		}
		t.notify()
	}

	var exit *transport.ExitStatus
	if ex.Exit != nil {
		exit = &transport.ExitStatus{Code: ex.Exit.Code, Signal: ex.Exit.Signal}
	}
	t.finishStream(exit, nil, true)
}

func (t *Transport) finishStream(exit *transport.ExitStatus, err error, drained bool) {
	t.mu.Lock()
	if err != nil {
		t.pendingErr = err
	}
	if exit != nil {
		t.exitStatus = exit
	}
	if drained {
		t.st = stateDrained
	}
	t.streaming = false
	t.mu.Unlock()
	t.notify()
}

func (t *Transport) notify() {
	t.mu.Lock()
	ch := t.newData
	t.newData = make(chan struct{})
	t.mu.Unlock()
	close(ch)
}

func (t *Transport) Expect(patterns []transport.Pattern, timeoutMS int) (int, error) {
	deadline := time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	for {
		t.mu.Lock()
		if t.pendingErr != nil {
			err := t.pendingErr
			t.pendingErr = nil
			t.mu.Unlock()
			return -1, err
		}
		unseen := t.buf[t.consumed:]
		streaming := t.streaming
		idx, span, ok := transport.MatchPatterns(unseen, patterns, !streaming)
		if ok {
			absSpan := [2]int{t.consumed + span[0], t.consumed + span[1]}
			t.before = append([]byte(nil), t.buf[t.consumed:absSpan[0]]...)
			t.after = append([]byte(nil), t.buf[absSpan[1]:]...)
			t.matchSpan = absSpan
			t.consumed = absSpan[1]
			t.mu.Unlock()
			return idx, nil
		}
		waitCh := t.newData
		t.mu.Unlock()

		if !streaming {
			if ti := transport.TimeoutPatternIndex(patterns); ti >= 0 {
				return ti, nil
			}
			return -1, transport.ErrExpectTimeout
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if ti := transport.TimeoutPatternIndex(patterns); ti >= 0 {
				return ti, nil
			}
			return -1, transport.ErrExpectTimeout
		}
		select {
		case <-waitCh:
		case <-time.After(remaining):
			if ti := transport.TimeoutPatternIndex(patterns); ti >= 0 {
				return ti, nil
			}
			return -1, transport.ErrExpectTimeout
		}
	}
}

// Drain mirrors LiveTransport.Drain for interactive passthrough callers:
// it blocks up to timeoutMS for unseen replayed bytes and consumes them.
// A pending injected error surfaces here too, so attach mode can report it
// the same way Expect would.
func (t *Transport) Drain(timeoutMS int) (data []byte, alive bool) {
	deadline := time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	for {
		t.mu.Lock()
		if t.pendingErr != nil {
			t.pendingErr = nil
			t.mu.Unlock()
			return nil, false
		}
		if len(t.buf) > t.consumed {
			out := append([]byte(nil), t.buf[t.consumed:]...)
			t.consumed = len(t.buf)
			t.mu.Unlock()
			return out, true
		}
		streaming := t.streaming
		if !streaming {
			t.mu.Unlock()
			return nil, false
		}
		waitCh := t.newData
		t.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, true
		}
		select {
		case <-waitCh:
		case <-time.After(remaining):
			return nil, true
		}
	}
}

func (t *Transport) ExpectExact(literals []string, timeoutMS int) (int, error) {
	patterns := make([]transport.Pattern, len(literals))
	for i, l := range literals {
		patterns[i] = transport.LiteralPattern(l)
	}
	return t.Expect(patterns, timeoutMS)
}

func (t *Transport) IsAlive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.st != stateClosed && t.exitStatus == nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	t.st = stateClosed
	t.mu.Unlock()
	return nil
}

func (t *Transport) Before() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.before
}

func (t *Transport) After() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.after
}

func (t *Transport) MatchSpan() [2]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.matchSpan
}

func (t *Transport) ExitStatus() (transport.ExitStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.exitStatus == nil {
		return transport.ExitStatus{}, false
	}
	return *t.exitStatus, true
}

func (t *Transport) SetLogfileRead(sink transport.LogSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logSink = sink
}

var _ transport.Transport = (*Transport)(nil)
