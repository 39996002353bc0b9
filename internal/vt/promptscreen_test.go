package vt

import "testing"

func TestPromptScreenCurrentLine(t *testing.T) {
	p := New(80, 24)
	defer p.Close()

	p.Write([]byte("sqlite> "))
	if got := p.CurrentLine(); got != "sqlite>" {
		t.Errorf("CurrentLine() = %q, want %q", got, "sqlite>")
	}
}

func TestPromptScreenStripsANSI(t *testing.T) {
	p := New(80, 24)
	defer p.Close()

	p.Write([]byte("\x1b[32msqlite>\x1b[0m "))
	if got := p.CurrentLine(); got != "sqlite>" {
		t.Errorf("CurrentLine() = %q, want %q", got, "sqlite>")
	}
}

func TestPromptScreenBlankWhenNoOutput(t *testing.T) {
	p := New(80, 24)
	defer p.Close()

	if got := p.CurrentLine(); got != "" {
		t.Errorf("CurrentLine() = %q, want empty", got)
	}
}

func TestPromptScreenResize(t *testing.T) {
	p := New(80, 24)
	defer p.Close()

	p.Resize(40, 12)
	p.Write([]byte("resized prompt> "))
	if got := p.CurrentLine(); got != "resized prompt>" {
		t.Errorf("CurrentLine() = %q, want %q", got, "resized prompt>")
	}
}
