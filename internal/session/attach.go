package session

import (
	"errors"
	"io"
	"time"
)

// attachIdleFlush is how long output must be quiet before the attach loop
// treats the in-flight exchange as finished and calls FlushExchange. Two
// Drain cycles (§ Drain's own 200ms poll) give a response stream time to
// pause between chunks without splitting one exchange in two.
const attachIdleFlush = 400 * time.Millisecond

// ErrAttachUnsupported is returned by Attach if the active transport has no
// raw passthrough capability (neither LiveTransport nor replay.Transport
// should ever hit this; it guards against future transports that don't).
var ErrAttachUnsupported = errors.New("session: active transport does not support attach")

// drainer is the raw-passthrough capability both transports additionally
// implement, outside the shared Transport contract (§6.2) which is
// pattern-match oriented rather than byte-stream oriented.
type drainer interface {
	Drain(timeoutMS int) (data []byte, alive bool)
}

// Attach pumps stdin into the Session and the active transport's raw
// output to stdout, for interactive use (the CLI's rec/play/proxy
// commands). It returns once the transport reports it is no longer alive
// or stdin reaches EOF.
func (s *Session) Attach(stdin io.Reader, stdout io.Writer) error {
	s.mu.Lock()
	_, ok := s.current.(drainer)
	s.mu.Unlock()
	if !ok {
		return ErrAttachUnsupported
	}

	stdinErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := stdin.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				if _, sendErr := s.Send(chunk); sendErr != nil {
					stdinErr <- sendErr
					return
				}
			}
			if err != nil {
				stdinErr <- err
				return
			}
		}
	}()

	for {
		s.mu.Lock()
		d, ok := s.current.(drainer)
		s.mu.Unlock()
		if !ok {
			return ErrAttachUnsupported
		}

		data, alive := d.Drain(200)
		if len(data) > 0 {
			if _, err := stdout.Write(data); err != nil {
				return err
			}
		}
		if !alive {
			return nil
		}

		if last := s.LastOutputAt(); !last.IsZero() && time.Since(last) >= attachIdleFlush {
			s.FlushExchange()
		}

		select {
		case err := <-stdinErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		default:
		}
	}
}
