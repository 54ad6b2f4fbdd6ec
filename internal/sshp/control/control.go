// Package control implements the interactive control plane of spec.md 4.5:
// a raw-mode keyboard listener for pause/resume/abort/kill-slot keystrokes,
// layered with OS signal handling for Ctrl-C, SIGTERM, and SIGWINCH. Both
// sources funnel into the same Pool, so a keystroke and a signal are handled
// identically regardless of which one a given terminal supports.
package control

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/tjper/sshp/internal/log"
	"github.com/tjper/sshp/internal/sshp/pool"
	"github.com/tjper/sshp/internal/sshp/term"
)

// Keys are the single-byte control-plane commands spec.md 4.5 defines.
const (
	keyPause  = 'p'
	keyResume = 'r'
	keyAbort  = 'a'
	keyKill   = 'k'
	keyEnter  = '\r'
	keyEnterN = '\n'
	keyEscape = 0x1b
	keyCtrlC  = 0x03
)

// ResizeFunc is invoked whenever the terminal's size may have changed, so the
// renderer can re-layout on its own next frame rather than the control plane
// reaching into renderer internals directly.
type ResizeFunc func()

// Controller owns the keyboard listener and signal handler goroutines for a
// single run. It is stopped once by the driver after the pool drains.
type Controller struct {
	pool   *pool.Pool
	logger *log.Logger
	onResize ResizeFunc

	in *os.File

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a Controller reading keystrokes from in (normally os.Stdin).
// onResize may be nil if no renderer is attached (e.g. non-interactive runs).
func New(p *pool.Pool, logger *log.Logger, in *os.File, onResize ResizeFunc) *Controller {
	return &Controller{
		pool:     p,
		logger:   logger,
		onResize: onResize,
		in:       in,
		done:     make(chan struct{}),
	}
}

// Run starts the keyboard listener (if in is a terminal) and the signal
// handler, and blocks until ctx is canceled or Stop is called. It is meant to
// be run in its own goroutine by the driver.
func (c *Controller) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer close(c.done)

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGWINCH)
	defer signal.Stop(sigCh)

	var wg sync.WaitGroup

	interactive := c.in != nil && term.IsTerminal(int(c.in.Fd()))
	if interactive {
		restore, err := term.RawMode(int(c.in.Fd()))
		if err != nil {
			c.logger.Warnf("enable raw terminal mode: %v", err)
		} else {
			defer restore()
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.listenKeys(ctx)
			}()
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.listenSignals(ctx, sigCh)
	}()

	<-ctx.Done()
	wg.Wait()
}

// Stop cancels Run's context and waits for both listener goroutines to exit.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	<-c.done
}

// listenKeys reads one byte at a time from the terminal, interpreting
// pause/resume/abort immediately and accumulating digits after 'k' into a
// slot number until Enter (or Escape to cancel the sub-mode).
func (c *Controller) listenKeys(ctx context.Context) {
	byteCh := make(chan byte)
	errCh := make(chan error, 1)

	go func() {
		for {
			b, err := term.ReadByte(c.in)
			if err != nil {
				errCh <- err
				return
			}
			select {
			case byteCh <- b:
			case <-ctx.Done():
				return
			}
		}
	}()

	var killDigits []byte
	inKillMode := false

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.logger.Warnf("keyboard listener stopped: %v", err)
			}
			return
		case b := <-byteCh:
			switch {
			case b == keyCtrlC:
				// ISIG is cleared in raw mode, so the kernel never turns this
				// byte into SIGINT; handle it exactly like listenSignals does
				// for an externally-delivered one, regardless of sub-mode.
				killDigits = nil
				inKillMode = false
				c.pool.Abort()
				c.pool.KillAllRunning()
			case inKillMode:
				switch {
				case b >= '0' && b <= '9':
					killDigits = append(killDigits, b)
				case b == keyEnter || b == keyEnterN:
					c.submitKill(killDigits)
					killDigits = nil
					inKillMode = false
				case b == keyEscape:
					killDigits = nil
					inKillMode = false
				}
			case b == keyPause:
				c.pool.Pause()
			case b == keyResume:
				c.pool.Resume()
			case b == keyAbort:
				c.pool.Abort()
			case b == keyKill:
				inKillMode = true
				killDigits = nil
			}
		}
	}
}

func (c *Controller) submitKill(digits []byte) {
	if len(digits) == 0 {
		return
	}
	slotID, err := strconv.Atoi(string(digits))
	if err != nil {
		c.logger.Warnf("invalid kill slot %q: %v", digits, err)
		return
	}
	c.pool.Kill(slotID)
}

// listenSignals maps SIGINT/SIGTERM to abort-plus-kill-all-running, and
// SIGWINCH to a renderer re-layout trigger (spec.md 4.5/4.6).
func (c *Controller) listenSignals(ctx context.Context, sigCh <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				c.pool.Abort()
				c.pool.KillAllRunning()
			case syscall.SIGWINCH:
				if c.onResize != nil {
					c.onResize()
				}
			}
		}
	}
}
