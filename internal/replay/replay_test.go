package replay

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/ehrlich-b/tapectl/internal/keybuilder"
	"github.com/ehrlich-b/tapectl/internal/policy"
	"github.com/ehrlich-b/tapectl/internal/store"
	"github.com/ehrlich-b/tapectl/internal/tape"
	"github.com/ehrlich-b/tapectl/internal/transport"
)

func buildStore(t *testing.T, root string, exchanges []tape.Exchange) *store.Store {
	t.Helper()
	tp := &tape.Tape{
		Meta: tape.TapeMeta{CreatedAt: time.Unix(0, 0).UTC(), Program: "/usr/bin/sqlite3", PTY: tape.PTYSize{Rows: 24, Cols: 80}},
		Exchanges: exchanges,
	}
	data, err := tape.Encode(tp)
	if err != nil {
		t.Fatal(err)
	}
	full := filepath.Join(root, "sqlite3", "a.json5")
	os.MkdirAll(filepath.Dir(full), 0o755)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		t.Fatal(err)
	}
	s := store.New(root, keybuilder.Policy{}, nil)
	s.LoadAll()
	s.BuildIndex()
	return s
}

func TestReplaySendMatchAndExpect(t *testing.T) {
	root := t.TempDir()
	s := buildStore(t, root, []tape.Exchange{
		{
			Pre:   tape.PreContext{Prompt: ""},
			Input: tape.NewLineInput("select 1;"),
			Output: []tape.Chunk{
				{DelayMS: 0, Data: []byte("1\n"), IsUTF8: true},
				{DelayMS: 0, Data: []byte("sqlite> "), IsUTF8: true},
			},
			DurMS: 5,
		},
	})

	tr := New(s, Config{Program: "/usr/bin/sqlite3", Rows: 24, Cols: 80, Latency: policy.ConstLatency(0)})
	if _, err := tr.SendLine("select 1;"); err != nil {
		t.Fatalf("SendLine: %v", err)
	}
	idx, err := tr.Expect([]transport.Pattern{transport.RegexPattern(regexp.MustCompile(`sqlite> $`))}, 1000)
	if err != nil {
		t.Fatalf("Expect: %v", err)
	}
	if idx != 0 {
		t.Errorf("idx = %d, want 0", idx)
	}
	if string(tr.Before()) != "1\n" {
		t.Errorf("Before = %q, want %q", tr.Before(), "1\n")
	}
}

func TestReplayMissReturnsTapeMissError(t *testing.T) {
	root := t.TempDir()
	s := buildStore(t, root, []tape.Exchange{
		{Pre: tape.PreContext{}, Input: tape.NewLineInput("select 1;"), Output: nil, DurMS: 1},
	})

	tr := New(s, Config{Program: "/usr/bin/sqlite3", Rows: 24, Cols: 80, Fallback: tape.FallbackNotFound})
	_, err := tr.SendLine("select 2;")
	if err == nil {
		t.Fatal("expected TapeMissError")
	}
	miss, ok := err.(*TapeMissError)
	if !ok {
		t.Fatalf("expected *TapeMissError, got %T", err)
	}
	if len(miss.Nearest) == 0 {
		t.Error("expected at least one nearest-key candidate")
	}
}

func TestReplayDeterministicFaultInjection(t *testing.T) {
	root := t.TempDir()
	exchanges := []tape.Exchange{
		{
			Pre:   tape.PreContext{},
			Input: tape.NewLineInput("select 1;"),
			Output: []tape.Chunk{
				{DelayMS: 0, Data: []byte("a"), IsUTF8: true},
				{DelayMS: 0, Data: []byte("b"), IsUTF8: true},
				{DelayMS: 0, Data: []byte("c"), IsUTF8: true},
			},
			DurMS: 1,
		},
	}
	s := buildStore(t, root, exchanges)

	run := func() (string, error) {
		tr := New(s, Config{
			Program:       "/usr/bin/sqlite3",
			Rows:          24,
			Cols:          80,
			Latency:       policy.ConstLatency(0),
			ErrorRate:     policy.ConstErrorRate(100),
			InjectionMode: policy.TruncateOutput,
			Seed:          7,
		})
		tr.SendLine("select 1;")
		_, err := tr.Expect([]transport.Pattern{transport.LiteralPattern("zzz-never-matches")}, 500)
		return string(tr.Before()), err
	}

	before1, err1 := run()
	before2, err2 := run()

	if err1 == nil || err2 == nil {
		t.Fatalf("expected injected errors, got err1=%v err2=%v", err1, err2)
	}
	if _, ok := err1.(*InjectedError); !ok {
		t.Fatalf("err1 = %T, want *InjectedError", err1)
	}
	if before1 != before2 || err1.Error() != err2.Error() {
		t.Errorf("non-deterministic outcome: (%q,%v) vs (%q,%v)", before1, err1, before2, err2)
	}
}
