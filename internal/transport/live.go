package transport

import (
	"io"
	"sync"
	"time"

	"github.com/ehrlich-b/tapectl/internal/vt"
)

// TeeWriter receives a copy of every byte the live transport reads from
// the child, in arrival order. The Recorder's ChunkSink implements this.
type TeeWriter interface {
	Write(p []byte) (int, error)
}

// ChildIO is the narrow surface LiveTransport needs from a spawned child;
// livechild.Process satisfies it.
type ChildIO interface {
	Read(buf []byte) (int, error)
	Write(b []byte) (int, error)
	IsAlive() bool
	ExitStatus() (code int, signal string, ok bool)
	Terminate(grace time.Duration) (code int, signal string, err error)
}

// LiveTransport adapts a spawned child's PTY into the Transport interface.
// A dedicated read goroutine drains the child without blocking the
// caller's Expect (§5 "dedicated read task").
type LiveTransport struct {
	child ChildIO
	tee   TeeWriter

	// screen mirrors the child's PTY output so callers can snapshot a
	// prompt signature the same way the replay transport derives one from
	// its own screen (§4.5 "pre.prompt").
	screen *vt.PromptScreen

	mu           sync.Mutex
	buf          []byte
	consumed     int
	before       []byte
	after        []byte
	matchSpan    [2]int
	closed       bool
	newData      chan struct{}
	lastActivity time.Time

	logSink LogSink
}

// NewLiveTransport starts the background read loop over child, sized to
// rows/cols for prompt-line tracking. tee, if non-nil, receives every byte
// read for recording.
func NewLiveTransport(child ChildIO, tee TeeWriter, rows, cols int) *LiveTransport {
	t := &LiveTransport{
		child:        child,
		tee:          tee,
		screen:       vt.New(cols, rows),
		newData:      make(chan struct{}),
		lastActivity: time.Now(),
	}
	go t.readLoop()
	return t
}

func (t *LiveTransport) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := t.child.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			t.screen.Write(chunk)
			t.mu.Lock()
			t.buf = append(t.buf, chunk...)
			t.lastActivity = time.Now()
			ch := t.newData
			t.newData = make(chan struct{})
			t.mu.Unlock()
			close(ch)
			if t.tee != nil {
				t.tee.Write(chunk)
			}
			if t.logSink != nil {
				t.logSink.Write(chunk)
			}
		}
		if err != nil {
			t.mu.Lock()
			t.closed = true
			ch := t.newData
			t.newData = make(chan struct{})
			t.mu.Unlock()
			close(ch)
			return
		}
	}
}

// CurrentLine returns the prompt signature candidate from the live screen,
// the counterpart of replay.Transport's screen.CurrentLine() used to build
// each exchange's pre-context.
func (t *LiveTransport) CurrentLine() string {
	return t.screen.CurrentLine()
}

// LastActivity reports when output was last read from the child, used by
// the session's idle-timeout exchange segmentation (§4.5).
func (t *LiveTransport) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}

// Resize updates both the child's PTY and the mirrored screen.
func (t *LiveTransport) Resize(rows, cols int) error {
	t.screen.Resize(cols, rows)
	if r, ok := t.child.(interface{ Resize(rows, cols int) error }); ok {
		return r.Resize(rows, cols)
	}
	return nil
}

func (t *LiveTransport) Send(b []byte) (int, error) {
	return t.child.Write(b)
}

func (t *LiveTransport) SendLine(s string) (int, error) {
	return t.child.Write([]byte(s + "\n"))
}

func (t *LiveTransport) Expect(patterns []Pattern, timeoutMS int) (int, error) {
	deadline := time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	for {
		t.mu.Lock()
		unseen := t.buf[t.consumed:]
		idx, span, ok := MatchPatterns(unseen, patterns, t.closed)
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
		closed := t.closed
		t.mu.Unlock()

		if closed {
			if ti := TimeoutPatternIndex(patterns); ti >= 0 {
				return ti, nil
			}
			return -1, io.EOF
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if ti := TimeoutPatternIndex(patterns); ti >= 0 {
				return ti, nil
			}
			return -1, ErrExpectTimeout
		}
		select {
		case <-waitCh:
		case <-time.After(remaining):
			if ti := TimeoutPatternIndex(patterns); ti >= 0 {
				return ti, nil
			}
			return -1, ErrExpectTimeout
		}
	}
}

// Drain blocks up to timeoutMS for at least one unseen byte, then returns
// and consumes everything unseen so far. Used by interactive passthrough
// callers (the CLI's attach mode) that want raw bytes rather than a
// pattern match. alive is false once the child has exited with nothing
// left to drain.
func (t *LiveTransport) Drain(timeoutMS int) (data []byte, alive bool) {
	deadline := time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	for {
		t.mu.Lock()
		if len(t.buf) > t.consumed {
			out := append([]byte(nil), t.buf[t.consumed:]...)
			t.consumed = len(t.buf)
			t.mu.Unlock()
			return out, true
		}
		if t.closed {
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

func (t *LiveTransport) ExpectExact(literals []string, timeoutMS int) (int, error) {
	patterns := make([]Pattern, len(literals))
	for i, l := range literals {
		patterns[i] = LiteralPattern(l)
	}
	return t.Expect(patterns, timeoutMS)
}

func (t *LiveTransport) IsAlive() bool { return t.child.IsAlive() }

func (t *LiveTransport) Close() error {
	_, _, err := t.child.Terminate(5 * time.Second)
	return err
}

func (t *LiveTransport) Before() []byte     { t.mu.Lock(); defer t.mu.Unlock(); return t.before }
func (t *LiveTransport) After() []byte      { t.mu.Lock(); defer t.mu.Unlock(); return t.after }
func (t *LiveTransport) MatchSpan() [2]int  { t.mu.Lock(); defer t.mu.Unlock(); return t.matchSpan }

func (t *LiveTransport) ExitStatus() (ExitStatus, bool) {
	code, sig, ok := t.child.ExitStatus()
	if !ok {
		return ExitStatus{}, false
	}
	return ExitStatus{Code: code, Signal: sig}, true
}

func (t *LiveTransport) SetLogfileRead(sink LogSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logSink = sink
}
