package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ehrlich-b/tapectl/internal/session"
	"golang.org/x/term"
)

// runAttached builds a session for program/args, puts the controlling
// terminal into raw mode when stdin is one, and pumps stdin/stdout through
// it until the session ends. Grounded in cmd/wt/egg.go's eggSpawn, which
// this replaces: raw-mode enter/restore around the pump, SIGWINCH forwarded
// as a PTY resize for the session's lifetime.
func runAttached(cfg session.Config) error {
	ctx := context.Background()
	sess, err := session.New(ctx, cfg)
	if err != nil {
		return err
	}

	fd := int(os.Stdin.Fd())
	var restore func() error
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err == nil {
			restore = func() error { return term.Restore(fd, oldState) }
			defer restore()
		}
	}

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-winch:
				if w, h, err := term.GetSize(fd); err == nil {
					sess.Resize(h, w)
				}
			case <-done:
				return
			}
		}
	}()

	attachErr := sess.Attach(os.Stdin, os.Stdout)
	close(done)

	closeErr := sess.Close()
	if attachErr != nil && !errors.Is(attachErr, session.ErrAttachUnsupported) {
		return attachErr
	}
	return closeErr
}
