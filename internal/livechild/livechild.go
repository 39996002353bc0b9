// Package livechild spawns a program under a pseudo-terminal and exposes the
// narrow surface the live transport needs: a read/write byte stream, resize,
// graceful termination, and exit status. It is the one place in this module
// that talks to creack/pty and os/exec directly.
package livechild

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// Process is a single running child under a PTY.
type Process struct {
	cmd  *exec.Cmd
	ptmx *os.File

	mu       sync.Mutex
	alive    bool
	exitCode int
	signal   string
	waitDone chan struct{}
	waitErr  error
}

// Start spawns program with args under a PTY of the given size. env is used
// verbatim as the child's environment; the caller is responsible for
// merging in whatever ambient variables it wants visible.
func Start(ctx context.Context, program string, args []string, env map[string]string, cwd string, rows, cols int) (*Process, error) {
	binPath, err := exec.LookPath(program)
	if err != nil {
		return nil, fmt.Errorf("livechild: %q not found: %w", program, err)
	}

	cmd := exec.CommandContext(ctx, binPath, args...)
	cmd.Dir = cwd
	cmd.Env = envSlice(env)

	// Graceful termination: SIGTERM first, SIGKILL after WaitDelay if the
	// child ignores it. Mirrors the PTY session lifecycle used elsewhere in
	// this codebase for interactive child processes.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	size := &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}
	ptmx, err := pty.StartWithSize(cmd, size)
	if err != nil {
		return nil, fmt.Errorf("livechild: start pty: %w", err)
	}

	p := &Process{
		cmd:      cmd,
		ptmx:     ptmx,
		alive:    true,
		waitDone: make(chan struct{}),
	}
	go p.reap()
	return p, nil
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func (p *Process) reap() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.alive = false
	p.waitErr = err
	if state := p.cmd.ProcessState; state != nil {
		p.exitCode = state.ExitCode()
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			p.signal = ws.Signal().String()
		}
	}
	p.mu.Unlock()
	close(p.waitDone)
}

// Read reads bytes produced by the child on its PTY master side.
func (p *Process) Read(buf []byte) (int, error) {
	return p.ptmx.Read(buf)
}

// Write sends bytes to the child's stdin via the PTY.
func (p *Process) Write(b []byte) (int, error) {
	return p.ptmx.Write(b)
}

// Resize updates the PTY window size.
func (p *Process) Resize(rows, cols int) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// IsAlive reports whether the child has not yet exited.
func (p *Process) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

// ExitStatus returns (code, signal, ok) once the child has exited.
func (p *Process) ExitStatus() (int, string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.alive {
		return 0, "", false
	}
	return p.exitCode, p.signal, true
}

// Terminate requests termination and waits up to grace for the child to
// exit on its own before the context cancellation escalates to SIGKILL.
// Returns once the child has exited.
func (p *Process) Terminate(grace time.Duration) (int, string, error) {
	if !p.IsAlive() {
		code, sig, _ := p.ExitStatus()
		return code, sig, nil
	}
	p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.waitDone:
	case <-time.After(grace):
		p.cmd.Process.Kill()
		<-p.waitDone
	}
	_ = p.ptmx.Close()
	code, sig, _ := p.ExitStatus()
	return code, sig, nil
}

// Wait blocks until the child exits.
func (p *Process) Wait() {
	<-p.waitDone
}
