package control

import (
	"context"
	"io"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/tjper/sshp/internal/log"
	"github.com/tjper/sshp/internal/sshp/job"
	"github.com/tjper/sshp/internal/sshp/pool"
)

func newTestController(t *testing.T) (*Controller, *pool.Pool) {
	t.Helper()
	registry := job.NewRegistry()
	jobs := []*job.Job{job.New("h1", "h1", []string{"true"}, "")}
	p := pool.New(1, jobs, registry)
	c := New(p, log.New(io.Discard, "test "), nil, nil)
	return c, p
}

func TestSubmitKillParsesDigitsAndRequestsKill(t *testing.T) {
	c, p := newTestController(t)

	j, res := p.ClaimNext(context.Background(), 0)
	if res != pool.ClaimJob || j == nil {
		t.Fatalf("unexpected claim: %v, %v", j, res)
	}

	c.submitKill([]byte("0"))
	if !j.KillRequested() {
		t.Fatalf("expected kill requested on slot 0")
	}
}

func TestSubmitKillIgnoresEmptyDigits(t *testing.T) {
	c, p := newTestController(t)
	j, _ := p.ClaimNext(context.Background(), 0)

	c.submitKill(nil)
	if j.KillRequested() {
		t.Fatalf("expected no kill requested for empty digit buffer")
	}
}

func TestSubmitKillIgnoresNonNumeric(t *testing.T) {
	c, p := newTestController(t)
	j, _ := p.ClaimNext(context.Background(), 0)

	c.submitKill([]byte("x"))
	if j.KillRequested() {
		t.Fatalf("expected no kill requested for non-numeric slot")
	}
}

func TestListenKeysCtrlCAbortsAndKillsRunning(t *testing.T) {
	registry := job.NewRegistry()
	jobs := []*job.Job{job.New("h1", "h1", []string{"true"}, "")}
	p := pool.New(1, jobs, registry)
	j, res := p.ClaimNext(context.Background(), 0)
	if res != pool.ClaimJob || j == nil {
		t.Fatalf("unexpected claim: %v, %v", j, res)
	}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()

	c := New(p, log.New(io.Discard, "test "), r, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.listenKeys(ctx)
		close(done)
	}()

	// raw mode clears ISIG, so a literal Ctrl-C keypress arrives as the raw
	// byte 0x03 rather than a SIGINT; listenKeys must recognize it directly.
	if _, err := w.Write([]byte{keyCtrlC}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.After(time.Second)
	for !p.Aborted() || !j.KillRequested() {
		select {
		case <-deadline:
			t.Fatalf("expected abort+kill after a raw Ctrl-C byte")
		case <-time.After(5 * time.Millisecond):
		}
	}

	w.Close()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("listenKeys did not exit after context cancellation")
	}
}

func TestListenSignalsAbortsAndKillsOnInterrupt(t *testing.T) {
	c, p := newTestController(t)
	j, _ := p.ClaimNext(context.Background(), 0)

	sigCh := make(chan os.Signal, 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.listenSignals(ctx, sigCh)
		close(done)
	}()

	sigCh <- syscall.SIGINT
	time.Sleep(20 * time.Millisecond)

	if !p.Aborted() {
		t.Fatalf("expected pool to be aborted after SIGINT")
	}
	if !j.KillRequested() {
		t.Fatalf("expected running job to have a kill requested after SIGINT")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("listenSignals did not exit after context cancellation")
	}
}

func TestListenSignalsTriggersResizeOnWinch(t *testing.T) {
	registry := job.NewRegistry()
	p := pool.New(1, []*job.Job{job.New("h1", "h1", []string{"true"}, "")}, registry)

	resized := make(chan struct{}, 1)
	c := New(p, log.New(io.Discard, "test "), nil, func() { resized <- struct{}{} })

	sigCh := make(chan os.Signal, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.listenSignals(ctx, sigCh)
		close(done)
	}()

	sigCh <- syscall.SIGWINCH
	select {
	case <-resized:
	case <-time.After(time.Second):
		t.Fatalf("expected onResize to be called after SIGWINCH")
	}

	cancel()
	<-done
}
