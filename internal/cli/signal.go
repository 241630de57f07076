package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SignalContext wraps a context and remembers the signal that cancelled it,
// so commands can tell an operator's Ctrl-C from an internal failure.
type SignalContext struct {
	context.Context
	Cancel func()

	mu     sync.Mutex
	sigVal os.Signal
}

// NewSignalContext creates a context cancelled on SIGINT or SIGTERM.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{Context: ctx, Cancel: cancel}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			sc.mu.Lock()
			sc.sigVal = sig
			sc.mu.Unlock()
			sc.Cancel()
		case <-ctx.Done():
		}
	}()

	return sc
}

// Signal returns the signal that cancelled the context, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

var errInterrupted = errors.New("interrupted")

// InterruptibleReader wraps a blocking reader (os.Stdin) and fails the read
// once the cancel channel closes. It cannot unblock a read already in
// flight; the check lands before the next one.
type InterruptibleReader struct {
	base   io.Reader
	cancel <-chan struct{}
}

// NewInterruptibleReader wraps base with the given cancel channel.
func NewInterruptibleReader(base io.Reader, cancel <-chan struct{}) *InterruptibleReader {
	return &InterruptibleReader{base: base, cancel: cancel}
}

func (r *InterruptibleReader) Read(p []byte) (int, error) {
	select {
	case <-r.cancel:
		return 0, errInterrupted
	default:
	}

	n, err := r.base.Read(p)

	select {
	case <-r.cancel:
		return 0, errInterrupted
	default:
	}
	return n, err
}

// IsInterrupted reports whether err traces back to a cancellation rather
// than a real failure.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, errInterrupted) ||
		errors.Is(err, io.EOF)
}

// ExitError maps an execution error to the process outcome: interruptions
// exit clean, everything else propagates.
func ExitError(err error) error {
	if err == nil || IsInterrupted(err) {
		return nil
	}
	return err
}
