package session

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/ehrlich-b/tapectl/internal/keybuilder"
	"github.com/ehrlich-b/tapectl/internal/policy"
	"github.com/ehrlich-b/tapectl/internal/tape"
	"github.com/ehrlich-b/tapectl/internal/transport"
)

func writeTape(t *testing.T, root string) {
	t.Helper()
	tp := &tape.Tape{
		Meta: tape.TapeMeta{CreatedAt: time.Unix(0, 0).UTC(), Program: "/usr/bin/sqlite3", PTY: tape.PTYSize{Rows: 24, Cols: 80}},
		Exchanges: []tape.Exchange{
			{
				Pre:   tape.PreContext{},
				Input: tape.NewLineInput("select 1;"),
				Output: []tape.Chunk{
					{DelayMS: 0, Data: []byte("1\nsqlite> "), IsUTF8: true},
				},
				DurMS: 1,
			},
		},
	}
	data, err := tape.Encode(tp)
	if err != nil {
		t.Fatal(err)
	}
	full := filepath.Join(root, "sqlite3", "a.json5")
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSessionReplayHitRoundTrip(t *testing.T) {
	root := t.TempDir()
	writeTape(t, root)

	s, err := New(context.Background(), Config{
		Program:    "/usr/bin/sqlite3",
		Rows:       24,
		Cols:       80,
		TapesRoot:  root,
		RecordMode: tape.RecordDisabled,
		Fallback:   tape.FallbackNotFound,
		Latency:    policy.ConstLatency(0),
		KeyPolicy:  keybuilder.Policy{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if _, err := s.SendLine("select 1;"); err != nil {
		t.Fatalf("SendLine: %v", err)
	}
	idx, err := s.Expect([]transport.Pattern{transport.RegexPattern(regexp.MustCompile(`sqlite> $`))}, 1000)
	if err != nil {
		t.Fatalf("Expect: %v", err)
	}
	if idx != 0 {
		t.Errorf("idx = %d, want 0", idx)
	}
}

func writeMultiExchangeTape(t *testing.T, root string) {
	t.Helper()
	tp := &tape.Tape{
		Meta: tape.TapeMeta{CreatedAt: time.Unix(0, 0).UTC(), Program: "/usr/bin/sqlite3", PTY: tape.PTYSize{Rows: 24, Cols: 80}},
		Exchanges: []tape.Exchange{
			{
				Pre:   tape.PreContext{},
				Input: tape.NewLineInput("select 1;"),
				Output: []tape.Chunk{
					{DelayMS: 0, Data: []byte("1\r\nsqlite> "), IsUTF8: true},
				},
				DurMS: 1,
			},
			{
				Pre:   tape.PreContext{Prompt: "sqlite>"},
				Input: tape.NewLineInput("select 2;"),
				Output: []tape.Chunk{
					{DelayMS: 0, Data: []byte("2\r\nsqlite> "), IsUTF8: true},
				},
				DurMS: 1,
			},
		},
	}
	data, err := tape.Encode(tp)
	if err != nil {
		t.Fatal(err)
	}
	full := filepath.Join(root, "sqlite3", "a.json5")
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestSessionReplayMultiExchangeRoundTrip guards record-then-replay parity
// (§8) for sessions with more than one exchange: the second exchange's
// recorded pre.prompt ("sqlite> ", left behind by the first exchange's
// output) must match the live prompt the replay transport's screen derives
// after streaming the first exchange, or the second Send misses.
func TestSessionReplayMultiExchangeRoundTrip(t *testing.T) {
	root := t.TempDir()
	writeMultiExchangeTape(t, root)

	s, err := New(context.Background(), Config{
		Program:    "/usr/bin/sqlite3",
		Rows:       24,
		Cols:       80,
		TapesRoot:  root,
		RecordMode: tape.RecordDisabled,
		Fallback:   tape.FallbackNotFound,
		Latency:    policy.ConstLatency(0),
		KeyPolicy:  keybuilder.Policy{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if _, err := s.SendLine("select 1;"); err != nil {
		t.Fatalf("SendLine 1: %v", err)
	}
	if _, err := s.Expect([]transport.Pattern{transport.RegexPattern(regexp.MustCompile(`sqlite> $`))}, 1000); err != nil {
		t.Fatalf("Expect 1: %v", err)
	}

	if _, err := s.SendLine("select 2;"); err != nil {
		t.Fatalf("SendLine 2: %v", err)
	}
	if _, err := s.Expect([]transport.Pattern{transport.RegexPattern(regexp.MustCompile(`sqlite> $`))}, 1000); err != nil {
		t.Fatalf("Expect 2: %v", err)
	}
}

func TestSessionReplayMissNotFoundReturnsError(t *testing.T) {
	root := t.TempDir()
	writeTape(t, root)

	s, err := New(context.Background(), Config{
		Program:    "/usr/bin/sqlite3",
		Rows:       24,
		Cols:       80,
		TapesRoot:  root,
		RecordMode: tape.RecordDisabled,
		Fallback:   tape.FallbackNotFound,
		KeyPolicy:  keybuilder.Policy{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if _, err := s.SendLine("select 2;"); err == nil {
		t.Fatal("expected a tape-miss error")
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeTape(t, root)

	s, err := New(context.Background(), Config{
		Program:    "/usr/bin/sqlite3",
		Rows:       24,
		Cols:       80,
		TapesRoot:  root,
		RecordMode: tape.RecordDisabled,
		Fallback:   tape.FallbackNotFound,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
