package lifecycle

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
)

// InterruptSource is polled by the controller for pending interrupts.
type InterruptSource interface {
	// Take reports and clears a pending interrupt.
	Take() bool
	// Restore reinstates default interrupt handling.
	Restore()
}

// Interrupts is a single pending-interrupt flag. A watcher goroutine sets it
// when a signal arrives; the controller consumes it from its poll loop.
type Interrupts struct {
	pending atomic.Bool

	sigs    []os.Signal
	sigCh   chan os.Signal
	done    chan struct{}
	restore sync.Once
}

// NewInterrupts returns a flag not bound to any OS signal. Raise sets it.
func NewInterrupts() *Interrupts {
	return &Interrupts{done: make(chan struct{})}
}

// WatchSignals installs handlers for sigs (default os.Interrupt) and starts
// the watcher goroutine. Restore stops it.
func WatchSignals(sigs ...os.Signal) *Interrupts {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt}
	}
	i := &Interrupts{
		sigs:  sigs,
		sigCh: make(chan os.Signal, 1),
		done:  make(chan struct{}),
	}
	signal.Notify(i.sigCh, sigs...)

	go i.watch()
	return i
}

func (i *Interrupts) watch() {
	for {
		select {
		case sig := <-i.sigCh:
			slog.Debug("lifecycle: interrupt received", "signal", sig)
			i.Raise()
		case <-i.done:
			return
		}
	}
}

// Raise marks an interrupt as pending.
func (i *Interrupts) Raise() {
	i.pending.Store(true)
}

// Take reports and clears a pending interrupt.
func (i *Interrupts) Take() bool {
	return i.pending.CompareAndSwap(true, false)
}

// Restore stops the watcher and resets the signals to their default
// behavior. Only the first call has an effect.
func (i *Interrupts) Restore() {
	i.restore.Do(func() {
		if i.sigCh != nil {
			signal.Stop(i.sigCh)
			signal.Reset(i.sigs...)
		}
		close(i.done)
		slog.Debug("lifecycle: default interrupt handling restored")
	})
}

// Restored reports whether Restore has been called.
func (i *Interrupts) Restored() bool {
	select {
	case <-i.done:
		return true
	default:
		return false
	}
}
