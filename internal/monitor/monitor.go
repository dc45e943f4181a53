// Package monitor is the host-side control plane spec.md §5 asks for:
// "a host wrapper wishing to interrupt run must do so out of band
// (thread interruption, signal-driven flag check inserted at loop top)".
// Monitor puts the controlling terminal in raw mode, reads host
// keystrokes in a background goroutine, and flips the engine's stop flag
// or prints a register dump in response — without ever touching the
// engine's register file, PC, or Memory directly.
//
// Grounded on the teacher's TerminalHost (terminal_host.go): same
// raw-mode setup via golang.org/x/term, same nonblocking-read-with-EAGAIN
// poll loop, same Stop/restore discipline. The teacher's host adapter
// feeds stdin bytes into the guest; this one feeds host keypresses into
// operator commands instead, since the UART this core models is
// write-only and has no guest-visible input path (spec.md §6).
package monitor

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Engine is the subset of *cpu.Engine the monitor needs. Defined locally
// so this package does not import pkg/cpu just to name a type, and so it
// stays trivially testable with a fake.
type Engine interface {
	RequestStop()
	RegisterDump() string
}

// Monitor reads raw keystrokes from a terminal and drives Engine in
// response: 'q' or Ctrl-C requests a stop, 'd' prints a register dump.
// Any other byte is ignored.
type Monitor struct {
	engine  Engine
	dumpOut io.Writer

	fd           int
	oldState     *term.State
	nonblockSet  bool
	stopCh       chan struct{}
	done         chan struct{}
	stopOnce     sync.Once
}

// New creates a monitor that will control engine and print dumps to
// dumpOut when asked.
func New(engine Engine, dumpOut io.Writer) *Monitor {
	return &Monitor{
		engine:  engine,
		dumpOut: dumpOut,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start puts stdin into raw, non-blocking mode and begins polling for
// keystrokes in a goroutine. Call Stop to restore the terminal.
func (m *Monitor) Start() error {
	m.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(m.fd)
	if err != nil {
		close(m.done)
		return fmt.Errorf("monitor: failed to set raw mode: %w", err)
	}
	m.oldState = oldState

	if err := unix.SetNonblock(m.fd, true); err != nil {
		_ = term.Restore(m.fd, m.oldState)
		m.oldState = nil
		close(m.done)
		return fmt.Errorf("monitor: failed to set nonblocking stdin: %w", err)
	}
	m.nonblockSet = true

	go m.poll()
	return nil
}

// Stop terminates the polling goroutine and restores the terminal to its
// prior state. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	<-m.done
	if m.nonblockSet {
		_ = unix.SetNonblock(m.fd, false)
		m.nonblockSet = false
	}
	if m.oldState != nil {
		_ = term.Restore(m.fd, m.oldState)
		m.oldState = nil
	}
}

func (m *Monitor) poll() {
	defer close(m.done)
	buf := make([]byte, 1)

	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		n, err := unix.Read(m.fd, buf)
		if n > 0 {
			m.handle(buf[0])
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if err != nil {
			return
		}
		if n == 0 {
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func (m *Monitor) handle(b byte) {
	switch b {
	case 'q', 3: // 'q' or Ctrl-C
		m.engine.RequestStop()
	case 'd':
		fmt.Fprint(m.dumpOut, m.engine.RegisterDump())
	}
}
