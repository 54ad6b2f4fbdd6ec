package term

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Size is a terminal's width and height in character cells.
type Size struct {
	Rows, Cols int
}

// GetSize queries fd's current terminal size via TIOCGWINSZ. The renderer
// re-queries this every frame (spec.md 4.6) rather than caching it, so it
// tolerates resizes without relying on SIGWINCH delivery alone.
func GetSize(fd int) (Size, error) {
	ws, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
	if err != nil {
		return Size{}, fmt.Errorf("get terminal size: %w", err)
	}
	return Size{Rows: int(ws.Row), Cols: int(ws.Col)}, nil
}

// IsTerminal reports whether fd refers to a terminal device. The control
// plane is disabled (spec.md 4.5) when stdin is not a terminal.
func IsTerminal(fd int) bool {
	_, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	return err == nil
}

// RawMode places fd into non-canonical, non-echo mode for the duration of
// the run and returns a Restore func that puts the original mode back. The
// scoped-acquisition discipline spec.md 9 calls for (guaranteed release on
// every exit path) is the caller's responsibility: always `defer
// restore()` immediately after a successful call, mirroring the teacher's
// pattern of deferred io.Closer cleanup in internal/jobworker/job.New.
func RawMode(fd int) (restore func(), err error) {
	orig, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return nil, fmt.Errorf("get termios: %w", err)
	}

	raw := *orig
	raw.Lflag &^= unix.ECHO | unix.ICANON | unix.ISIG | unix.IEXTEN
	raw.Iflag &^= unix.IXON | unix.ICRNL | unix.BRKINT | unix.INPCK | unix.ISTRIP
	raw.Oflag &^= unix.OPOST
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, &raw); err != nil {
		return nil, fmt.Errorf("set termios: %w", err)
	}

	restored := false
	restore = func() {
		if restored {
			return
		}
		restored = true
		_ = unix.IoctlSetTermios(fd, ioctlSetTermios, orig)
	}
	return restore, nil
}

// ReadByte performs a single blocking read of one byte from fd, used by the
// control plane's keyboard listener once RawMode is in effect.
func ReadByte(f *os.File) (byte, error) {
	b := make([]byte, 1)
	n, err := f.Read(b)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("read terminal: no data")
	}
	return b[0], nil
}
