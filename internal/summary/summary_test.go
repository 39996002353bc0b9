package summary

import (
	"bytes"
	"testing"
)

func TestRenderListsNewAndUnused(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, PathSets{
		All:  []string{"a.json5", "b.json5", "c.json5"},
		Used: []string{"a.json5"},
		New:  []string{"c.json5"},
	})
	want := "===== SUMMARY (claude_control) =====\n" +
		"New tapes:\n" +
		"- c.json5\n" +
		"Unused tapes:\n" +
		"- b.json5\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestRenderOmittedWhenBothEmpty(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, PathSets{All: []string{"a.json5"}, Used: []string{"a.json5"}})
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestRenderIdempotent(t *testing.T) {
	sets := PathSets{All: []string{"a.json5", "b.json5"}, New: []string{"a.json5"}}
	var buf1, buf2 bytes.Buffer
	Render(&buf1, sets)
	Render(&buf2, sets)
	if buf1.String() != buf2.String() {
		t.Errorf("not idempotent: %q vs %q", buf1.String(), buf2.String())
	}
}
