// Package vt renders a live child's raw PTY bytes into a terminal screen so
// the recorder can snapshot a clean prompt signature instead of comparing
// raw, escape-laden output.
package vt

import (
	"strings"
	"sync"

	"github.com/charmbracelet/x/vt"

	"github.com/ehrlich-b/tapectl/internal/normalize"
)

// PromptScreen wraps a charmbracelet/x/vt emulator and exposes the last
// non-blank rendered line as a prompt signature candidate. All methods are
// thread-safe; callers typically hold one PromptScreen per live session.
type PromptScreen struct {
	emu  *vt.Emulator
	mu   sync.Mutex
	cols int
	rows int
}

// New creates a PromptScreen sized to the pty's rows/cols.
func New(cols, rows int) *PromptScreen {
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	return &PromptScreen{
		emu:  vt.NewEmulator(cols, rows),
		cols: cols,
		rows: rows,
	}
}

// Write feeds output bytes from the live child into the emulator.
func (p *PromptScreen) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.emu.Write(b)
}

// Resize updates the emulator's screen dimensions.
func (p *PromptScreen) Resize(cols, rows int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emu.Resize(cols, rows)
	p.cols, p.rows = cols, rows
}

// CurrentLine returns the last non-blank line currently rendered on screen,
// normalized (ANSI stripped, whitespace collapsed). This is the prompt
// signature snapshotted by the recorder in on_send.
func (p *PromptScreen) CurrentLine() string {
	p.mu.Lock()
	rendered := p.emu.Render()
	p.mu.Unlock()

	lines := strings.Split(rendered, "\r\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := normalize.CollapseWS(normalize.StripANSI([]byte(lines[i])))
		if len(line) > 0 {
			return string(line)
		}
	}
	return ""
}

// Close releases the emulator's resources.
func (p *PromptScreen) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.emu.Close()
}
