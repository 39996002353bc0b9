package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ehrlich-b/tapectl/internal/keybuilder"
	"github.com/ehrlich-b/tapectl/internal/tape"
)

func writeTapeFile(t *testing.T, root, rel string, tp *tape.Tape) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := tape.Encode(tp)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func minimalTape(program, input string) *tape.Tape {
	return &tape.Tape{
		Meta: tape.TapeMeta{CreatedAt: time.Unix(0, 0).UTC(), Program: program, PTY: tape.PTYSize{Rows: 24, Cols: 80}},
		Exchanges: []tape.Exchange{
			{
				Pre:    tape.PreContext{Prompt: "$ "},
				Input:  tape.NewLineInput(input),
				Output: []tape.Chunk{{DelayMS: 1, Data: []byte("ok\n"), IsUTF8: true}},
				DurMS:  5,
			},
		},
	}
}

func TestLoadAllAndBuildIndex(t *testing.T) {
	root := t.TempDir()
	writeTapeFile(t, root, "sqlite3/a.json5", minimalTape("/usr/bin/sqlite3", "select 1;"))

	s := New(root, keybuilder.Policy{}, nil)
	diags := s.LoadAll()
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	s.BuildIndex()

	ctx := keybuilder.Context{Program: "/usr/bin/sqlite3", Prompt: "$ "}
	ti, ei, ok := s.FindMatch(ctx, tape.NewLineInput("select 1;"))
	if !ok {
		t.Fatal("expected match")
	}
	if ti != 0 || ei != 0 {
		t.Errorf("got (%d,%d), want (0,0)", ti, ei)
	}
}

func TestFindMatchMissReturnsFalse(t *testing.T) {
	root := t.TempDir()
	writeTapeFile(t, root, "sqlite3/a.json5", minimalTape("/usr/bin/sqlite3", "select 1;"))

	s := New(root, keybuilder.Policy{}, nil)
	s.LoadAll()
	s.BuildIndex()

	ctx := keybuilder.Context{Program: "/usr/bin/sqlite3", Prompt: "$ "}
	_, _, ok := s.FindMatch(ctx, tape.NewLineInput("select 2;"))
	if ok {
		t.Fatal("expected no match")
	}
}

func TestLoadAllCollectsDiagnosticsOnSchemaError(t *testing.T) {
	root := t.TempDir()
	bad := filepath.Join(root, "broken.json5")
	os.WriteFile(bad, []byte(`{"meta": {"program": "x"}, "exchanges": []}`), 0o644)

	s := New(root, keybuilder.Policy{}, nil)
	diags := s.LoadAll()
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d: %v", len(diags), diags)
	}
}

func TestWriteTapeNewMergesWithExisting(t *testing.T) {
	root := t.TempDir()
	existing := minimalTape("/usr/bin/sqlite3", "select 1;")
	writeTapeFile(t, root, "sqlite3/a.json5", existing)

	s := New(root, keybuilder.Policy{}, nil)
	incoming := minimalTape("/usr/bin/sqlite3", "select 2;")
	if err := s.WriteTape("sqlite3/a.json5", incoming, tape.RecordNew); err != nil {
		t.Fatalf("WriteTape: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(root, "sqlite3/a.json5"))
	merged, err := tape.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(merged.Exchanges) != 2 {
		t.Fatalf("len(Exchanges) = %d, want 2", len(merged.Exchanges))
	}
	if merged.Exchanges[0].Input.Text != "select 1;" || merged.Exchanges[1].Input.Text != "select 2;" {
		t.Errorf("unexpected exchange order: %+v", merged.Exchanges)
	}
}

func TestWriteTapeOverwriteReplacesWholesale(t *testing.T) {
	root := t.TempDir()
	writeTapeFile(t, root, "sqlite3/a.json5", minimalTape("/usr/bin/sqlite3", "select 1;"))

	s := New(root, keybuilder.Policy{}, nil)
	incoming := minimalTape("/usr/bin/sqlite3", "select 1;")
	incoming.Exchanges[0].Output[0].Data = []byte("1\nsqlite> ")
	if err := s.WriteTape("sqlite3/a.json5", incoming, tape.RecordOverwrite); err != nil {
		t.Fatalf("WriteTape: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(root, "sqlite3/a.json5"))
	got, err := tape.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Exchanges) != 1 {
		t.Fatalf("len(Exchanges) = %d, want 1", len(got.Exchanges))
	}
	if string(got.Exchanges[0].Output[0].Data) != "1\nsqlite> " {
		t.Errorf("Output = %q", got.Exchanges[0].Output[0].Data)
	}
}

func TestWriteTapeDisabledDoesNoIO(t *testing.T) {
	root := t.TempDir()
	s := New(root, keybuilder.Policy{}, nil)
	if err := s.WriteTape("sqlite3/a.json5", minimalTape("/usr/bin/sqlite3", "x"), tape.RecordDisabled); err != nil {
		t.Fatalf("WriteTape: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "sqlite3/a.json5")); !os.IsNotExist(err) {
		t.Error("expected no file to be written under RecordDisabled")
	}
}

func TestExitSummaryPartitioning(t *testing.T) {
	root := t.TempDir()
	writeTapeFile(t, root, "a.json5", minimalTape("/bin/a", "x"))
	writeTapeFile(t, root, "b.json5", minimalTape("/bin/b", "y"))

	s := New(root, keybuilder.Policy{}, nil)
	s.LoadAll()
	s.MarkUsed("a.json5")
	s.MarkNew("c.json5")

	all := s.AllPaths()
	used := s.UsedPaths()
	newP := s.NewPaths()

	unused := map[string]bool{}
	for _, p := range all {
		unused[p] = true
	}
	for _, p := range used {
		delete(unused, p)
	}
	for _, p := range newP {
		delete(unused, p)
	}
	if !unused["b.json5"] {
		t.Errorf("expected b.json5 to be unused, got %v", unused)
	}
}
