package recorder

import (
	"testing"
	"time"

	"github.com/ehrlich-b/tapectl/internal/keybuilder"
	"github.com/ehrlich-b/tapectl/internal/tape"
)

func TestChunkSinkFirstWriteHasZeroDelay(t *testing.T) {
	sink := NewChunkSink()
	sink.Write([]byte("hello"))
	chunks := sink.Drain()
	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
	if chunks[0].DelayMS != 0 {
		t.Errorf("DelayMS = %d, want 0", chunks[0].DelayMS)
	}
}

func TestChunkSinkComputesDelayBetweenWrites(t *testing.T) {
	sink := NewChunkSink()
	var now time.Time
	sink.now = func() time.Time { return now }

	now = time.Unix(0, 0)
	sink.Write([]byte("a"))
	now = now.Add(12 * time.Millisecond)
	sink.Write([]byte("b"))

	chunks := sink.Drain()
	if chunks[0].DelayMS != 0 {
		t.Errorf("chunks[0].DelayMS = %d, want 0", chunks[0].DelayMS)
	}
	if chunks[1].DelayMS != 12 {
		t.Errorf("chunks[1].DelayMS = %d, want 12", chunks[1].DelayMS)
	}
}

func TestChunkSinkResetClearsTiming(t *testing.T) {
	sink := NewChunkSink()
	sink.Write([]byte("a"))
	sink.Reset()
	chunks := sink.Drain()
	if len(chunks) != 0 {
		t.Fatalf("expected empty after reset, got %d chunks", len(chunks))
	}
	sink.Write([]byte("b"))
	if sink.Drain()[0].DelayMS != 0 {
		t.Error("expected delay 0 for first write after reset")
	}
}

type fakeWriter struct {
	wrote    *tape.Tape
	path     string
	mode     tape.RecordMode
	newPaths []string
}

func (f *fakeWriter) WriteTape(path string, t *tape.Tape, mode tape.RecordMode) error {
	f.wrote = t
	f.path = path
	f.mode = mode
	return nil
}

func (f *fakeWriter) MarkNew(path string) { f.newPaths = append(f.newPaths, path) }

func TestRecorderAssemblesExchanges(t *testing.T) {
	sink := NewChunkSink()
	r := New(sink, nil)
	ctx := keybuilder.Context{Program: "/bin/echo", Prompt: "$ "}

	r.OnSend(ctx, []byte("select 1;"), tape.Line)
	sink.Write([]byte("1\n"))
	r.OnExchangeEnd(ctx, EndReason{Kind: PromptMatched})

	w := &fakeWriter{}
	naming := func(keybuilder.Context) string { return "tapes/echo/test.json5" }
	meta := tape.TapeMeta{Program: "/bin/echo"}
	if err := r.Finalize(ctx, meta, tape.SessionInfo{}, w, naming, tape.RecordNew); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(w.wrote.Exchanges) != 1 {
		t.Fatalf("len(Exchanges) = %d, want 1", len(w.wrote.Exchanges))
	}
	if w.wrote.Exchanges[0].Input.Text != "select 1;" {
		t.Errorf("Input.Text = %q", w.wrote.Exchanges[0].Input.Text)
	}
	if len(w.newPaths) != 1 || w.newPaths[0] != "tapes/echo/test.json5" {
		t.Errorf("MarkNew called with %v", w.newPaths)
	}
}

func TestRecorderRedactsSecretsByDefault(t *testing.T) {
	sink := NewChunkSink()
	r := New(sink, nil)
	ctx := keybuilder.Context{Program: "/bin/echo"}

	r.OnSend(ctx, []byte("login"), tape.Line)
	sink.Write([]byte("password: hunter2\n"))
	r.OnExchangeEnd(ctx, EndReason{Kind: PromptMatched})

	w := &fakeWriter{}
	err := r.Finalize(ctx, tape.TapeMeta{Program: "/bin/echo"}, tape.SessionInfo{}, w, func(keybuilder.Context) string { return "p" }, tape.RecordNew)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	got := string(w.wrote.Exchanges[0].Output[0].Data)
	if got != "password: ***\n" {
		t.Errorf("Output = %q, want redacted", got)
	}
}

func TestRecorderSkipsRedactionWhenDisabled(t *testing.T) {
	sink := NewChunkSink()
	r := New(sink, nil, WithRedaction(false))
	ctx := keybuilder.Context{Program: "/bin/echo"}

	r.OnSend(ctx, []byte("login"), tape.Line)
	sink.Write([]byte("password: hunter2\n"))
	r.OnExchangeEnd(ctx, EndReason{Kind: PromptMatched})

	w := &fakeWriter{}
	_ = r.Finalize(ctx, tape.TapeMeta{Program: "/bin/echo"}, tape.SessionInfo{}, w, func(keybuilder.Context) string { return "p" }, tape.RecordNew)
	got := string(w.wrote.Exchanges[0].Output[0].Data)
	if got != "password: hunter2\n" {
		t.Errorf("Output = %q, want unredacted", got)
	}
}

// TestRecorderOnSendFlushesPriorOpenExchange guards against silently
// discarding an in-flight exchange when a caller (e.g. interactive attach)
// sends again without an intervening OnExchangeEnd.
func TestRecorderOnSendFlushesPriorOpenExchange(t *testing.T) {
	sink := NewChunkSink()
	r := New(sink, nil)
	ctx := keybuilder.Context{Program: "/bin/echo"}

	r.OnSend(ctx, []byte("select 1;"), tape.Line)
	sink.Write([]byte("1\n"))
	r.OnSend(ctx, []byte("select 2;"), tape.Line)
	sink.Write([]byte("2\n"))
	r.OnExchangeEnd(ctx, EndReason{Kind: PromptMatched})

	w := &fakeWriter{}
	err := r.Finalize(ctx, tape.TapeMeta{Program: "/bin/echo"}, tape.SessionInfo{}, w, func(keybuilder.Context) string { return "p" }, tape.RecordNew)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(w.wrote.Exchanges) != 2 {
		t.Fatalf("len(Exchanges) = %d, want 2", len(w.wrote.Exchanges))
	}
	if w.wrote.Exchanges[0].Input.Text != "select 1;" || string(w.wrote.Exchanges[0].Output[0].Data) != "1\n" {
		t.Errorf("Exchanges[0] = %+v, want select 1; -> 1\\n", w.wrote.Exchanges[0])
	}
	if w.wrote.Exchanges[1].Input.Text != "select 2;" || string(w.wrote.Exchanges[1].Output[0].Data) != "2\n" {
		t.Errorf("Exchanges[1] = %+v, want select 2; -> 2\\n", w.wrote.Exchanges[1])
	}
}

func TestRecorderChildExitedSetsExit(t *testing.T) {
	sink := NewChunkSink()
	r := New(sink, nil)
	ctx := keybuilder.Context{Program: "/bin/echo"}

	r.OnSend(ctx, []byte("exit"), tape.Line)
	r.OnExchangeEnd(ctx, EndReason{Kind: ChildExited, Code: 0})

	w := &fakeWriter{}
	_ = r.Finalize(ctx, tape.TapeMeta{Program: "/bin/echo"}, tape.SessionInfo{}, w, func(keybuilder.Context) string { return "p" }, tape.RecordNew)
	ex := w.wrote.Exchanges[0]
	if ex.Exit == nil || ex.Exit.Code != 0 {
		t.Errorf("Exit = %+v, want code 0", ex.Exit)
	}
}
