// Package recorder tees a live child's output into timed chunks and
// assembles them into Exchanges and, at session close, a Tape (§4.5).
package recorder

import (
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ehrlich-b/tapectl/internal/keybuilder"
	"github.com/ehrlich-b/tapectl/internal/normalize"
	"github.com/ehrlich-b/tapectl/internal/tape"
)

// ChunkSink is an append-only sink for a single in-flight exchange's output
// bytes. Each Write computes a delay relative to the previous write (0 on
// the first write since Reset) and appends a timed Chunk.
type ChunkSink struct {
	mu          sync.Mutex
	chunks      []tape.Chunk
	lastWrite   time.Time
	hasLast     bool
	now         func() time.Time
}

// NewChunkSink builds a ChunkSink using the wall clock.
func NewChunkSink() *ChunkSink {
	return &ChunkSink{now: time.Now}
}

// Write appends a chunk. It never returns an error; len(p) bytes are always
// accepted, matching io.Writer's contract for sinks that cannot fail.
func (s *ChunkSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var delay int64
	if s.hasLast {
		delay = now.Sub(s.lastWrite).Milliseconds()
		if delay < 0 {
			delay = 0
		}
	}
	s.lastWrite = now
	s.hasLast = true
	data := append([]byte(nil), p...)
	s.chunks = append(s.chunks, tape.Chunk{DelayMS: delay, Data: data, IsUTF8: utf8.Valid(data)})
	return len(p), nil
}

// Flush is a no-op; ChunkSink has no buffering beyond the chunk list.
func (s *ChunkSink) Flush() error { return nil }

// Reset clears the accumulated chunks and the delay clock, starting a new
// exchange's timing window.
func (s *ChunkSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.hasLast = false
}

// Drain returns the chunks accumulated since the last Reset.
func (s *ChunkSink) Drain() []tape.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tape.Chunk(nil), s.chunks...)
}

// EndReason tags why an exchange ended.
type EndReason struct {
	Kind   EndKind
	Code   int
	Signal string
}

type EndKind int

const (
	PromptMatched EndKind = iota
	Timeout
	ChildExited
)

// InputDecorator mutates decorated input bytes before they're stored.
type InputDecorator func(ctx keybuilder.Context, input []byte) ([]byte, error)

// OutputDecorator mutates an exchange's output chunks before they're stored.
type OutputDecorator func(ctx keybuilder.Context, output []tape.Chunk) ([]tape.Chunk, error)

// TapeDecorator mutates the assembled tape before it's written.
type TapeDecorator func(ctx keybuilder.Context, t *tape.Tape) (*tape.Tape, error)

// Writer is the subset of store.Store the Recorder needs at finalize.
type Writer interface {
	WriteTape(path string, t *tape.Tape, mode tape.RecordMode) error
	MarkNew(path string)
}

// NamingFunc resolves the on-disk path for a finalized tape (§6.5).
type NamingFunc func(ctx keybuilder.Context) string

// Recorder assembles Exchanges from ChunkSink output and, on Finalize,
// writes the resulting Tape through a Store.
type Recorder struct {
	sink   *ChunkSink
	logger *slog.Logger
	redact bool

	inputDecorator  InputDecorator
	outputDecorator OutputDecorator
	tapeDecorator   TapeDecorator

	now func() time.Time

	mu      sync.Mutex
	pending []tape.Exchange
	current *tape.Exchange
	startAt time.Time
}

// Option configures a Recorder at construction.
type Option func(*Recorder)

func WithInputDecorator(d InputDecorator) Option   { return func(r *Recorder) { r.inputDecorator = d } }
func WithOutputDecorator(d OutputDecorator) Option { return func(r *Recorder) { r.outputDecorator = d } }
func WithTapeDecorator(d TapeDecorator) Option     { return func(r *Recorder) { r.tapeDecorator = d } }
func WithRedaction(enabled bool) Option            { return func(r *Recorder) { r.redact = enabled } }

// New builds a Recorder bound to sink, logging decorator/redaction
// warnings through logger.
func New(sink *ChunkSink, logger *slog.Logger, opts ...Option) *Recorder {
	r := &Recorder{sink: sink, logger: logger, redact: true, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnSend begins a new exchange: snapshots pre-context, decorates the input,
// and resets the chunk sink's timing window. If a prior exchange is still
// open (the caller sent again without an intervening OnExchangeEnd, as
// happens during interactive attach), it's flushed first so its output is
// never silently discarded.
func (r *Recorder) OnSend(ctx keybuilder.Context, inputBytes []byte, kind tape.InputKind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.flushCurrentLocked(ctx, EndReason{Kind: PromptMatched})

	decorated := inputBytes
	if r.inputDecorator != nil {
		d, err := r.inputDecorator(ctx, inputBytes)
		if err != nil {
			r.warn("input_decorator", err)
		} else {
			decorated = d
		}
	}

	var input tape.Input
	if kind == tape.Line {
		input = tape.NewLineInput(string(decorated))
	} else {
		input = tape.NewRawInput(decorated)
	}

	r.current = &tape.Exchange{
		Pre: tape.PreContext{
			Prompt:    normalizedPrompt(ctx.Prompt),
			StateHash: ctx.StateHash,
		},
		Input: input,
	}
	r.startAt = r.now()
	r.sink.Reset()
}

func normalizedPrompt(prompt string) string {
	return string(normalize.CollapseWS(normalize.StripANSI([]byte(prompt))))
}

// OnExchangeEnd closes out the in-flight exchange and queues it for
// Finalize.
func (r *Recorder) OnExchangeEnd(ctx keybuilder.Context, reason EndReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushCurrentLocked(ctx, reason)
}

// flushCurrentLocked is the shared close-out path for both OnExchangeEnd
// and OnSend's defensive flush-before-overwrite. Callers must hold r.mu.
func (r *Recorder) flushCurrentLocked(ctx keybuilder.Context, reason EndReason) {
	if r.current == nil {
		return
	}

	output := r.sink.Drain()
	if r.outputDecorator != nil {
		d, err := r.outputDecorator(ctx, output)
		if err != nil {
			r.warn("output_decorator", err)
		} else {
			output = d
		}
	}

	ex := r.current
	ex.Output = output
	ex.DurMS = r.now().Sub(r.startAt).Milliseconds()
	if reason.Kind == ChildExited {
		ex.Exit = &tape.ExitInfo{Code: reason.Code, Signal: reason.Signal}
	}

	r.pending = append(r.pending, *ex)
	r.current = nil
}

func (r *Recorder) warn(decorator string, err error) {
	if r.logger != nil {
		r.logger.Warn("decorator failed, using undecorated value", "decorator", decorator, "err", err)
	}
}

// Finalize assembles the recorded exchanges into a Tape and persists it
// through store at the path resolved by naming, under mode.
func (r *Recorder) Finalize(ctx keybuilder.Context, meta tape.TapeMeta, session tape.SessionInfo, store Writer, naming NamingFunc, mode tape.RecordMode) error {
	r.mu.Lock()
	exchanges := append([]tape.Exchange(nil), r.pending...)
	r.mu.Unlock()

	t := &tape.Tape{Meta: meta, Session: session, Exchanges: exchanges}

	if r.tapeDecorator != nil {
		decorated, err := r.tapeDecorator(ctx, t)
		if err != nil {
			r.warn("tape_decorator", err)
		} else {
			t = decorated
		}
	}

	if r.redact {
		redactTape(t)
	} else if r.logger != nil {
		r.logger.Warn("redaction disabled; persisting tape unredacted", "program", meta.Program)
	}

	path := naming(ctx)
	if err := store.WriteTape(path, t, mode); err != nil {
		return err
	}
	store.MarkNew(path)
	return nil
}

func redactTape(t *tape.Tape) {
	for i := range t.Exchanges {
		ex := &t.Exchanges[i]
		if ex.Input.Kind == tape.Line {
			ex.Input.Text = string(normalize.RedactSecrets([]byte(ex.Input.Text)))
		} else {
			ex.Input.Bytes = normalize.RedactSecrets(ex.Input.Bytes)
		}
		for j := range ex.Output {
			ex.Output[j].Data = normalize.RedactSecrets(ex.Output[j].Data)
		}
	}
}
