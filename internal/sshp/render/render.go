// Package render implements the periodic terminal UI spec.md 4.6 describes:
// a header line with run-wide counts and elapsed time, a progress bar, and
// one row per worker slot showing its current host, elapsed time, state
// glyph, and last output line.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tjper/sshp/internal/sshp/job"
	"github.com/tjper/sshp/internal/sshp/pool"
	"github.com/tjper/sshp/internal/sshp/term"
)

// defaultWidth is used when the terminal size cannot be queried (e.g. output
// piped to a file without a controlling terminal).
const defaultWidth = 80

// Renderer redraws the terminal at a fixed interval from a snapshot of the
// Pool's state. Every frame re-queries the terminal width, so a SIGWINCH or
// a missed resize notification both self-correct within one tick.
type Renderer struct {
	out     io.Writer
	fd      int
	pool    *pool.Pool
	symbols term.Symbols
	start   time.Time

	mutex     sync.Mutex
	lastLines int // rows drawn in the previous frame, for cursor rewind
}

// New creates a Renderer writing to out. fd is the file descriptor used to
// query terminal width (ignored if out is not a terminal). Hosts are
// expected to already be in display form (config.DisplayHost is applied
// when Jobs are constructed, not here).
func New(out io.Writer, fd int, p *pool.Pool, symbols term.Symbols, start time.Time) *Renderer {
	return &Renderer{out: out, fd: fd, pool: p, symbols: symbols, start: start}
}

// Run redraws at interval until ctx is canceled, then draws one final frame
// so the terminal is left showing the run's last observed state.
func (r *Renderer) Run(ctx <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx:
			r.Draw()
			return
		case <-ticker.C:
			r.Draw()
		}
	}
}

// Trigger forces an immediate redraw, used by the control plane on SIGWINCH
// so a resize is reflected before the next scheduled tick.
func (r *Renderer) Trigger() {
	r.Draw()
}

// Draw snapshots every slot and the registry's counts under the pool's own
// locking, then formats and writes the frame without holding any lock
// (spec.md 4.6's snapshot-then-draw discipline).
func (r *Renderer) Draw() {
	width := defaultWidth
	if size, err := term.GetSize(r.fd); err == nil && size.Cols > 0 {
		width = size.Cols
	}

	counts := r.pool.Registry().Counts()
	slots := r.pool.Slots()

	type row struct {
		id    int
		idle  bool
		host  string
		state job.State
		line  string
		since time.Time
	}
	rows := make([]row, len(slots))
	for i, slot := range slots {
		j := slot.Current()
		if j == nil {
			rows[i] = row{id: slot.ID, idle: true}
			continue
		}
		rows[i] = row{
			id:    slot.ID,
			host:  j.DisplayHost,
			state: j.State(),
			line:  j.LastLine(),
			since: slot.StartedAt(),
		}
	}

	var b strings.Builder
	r.writeHeader(&b, counts, width)
	r.writeProgressBar(&b, counts, width)
	for _, rw := range rows {
		r.writeRow(&b, rw.id, rw.idle, rw.host, rw.state, rw.line, rw.since, width)
	}

	r.mutex.Lock()
	rewind := r.lastLines
	r.lastLines = len(rows) + 2
	r.mutex.Unlock()

	if rewind > 0 {
		fmt.Fprint(r.out, term.MoveUp(rewind))
	}
	fmt.Fprint(r.out, b.String())
}

func (r *Renderer) writeHeader(b *strings.Builder, counts job.Counts, width int) {
	elapsed := time.Since(r.start).Truncate(time.Second)
	fmt.Fprintf(b, term.ClearLine+"sshp  total=%d done=%d running=%d queued=%d elapsed=%s\n",
		counts.Total(), counts.Done(), counts.Running, counts.Queued, elapsed)
}

func (r *Renderer) writeProgressBar(b *strings.Builder, counts job.Counts, width int) {
	total := counts.Total()
	barWidth := width - 2
	if barWidth < 10 {
		barWidth = 10
	}
	filled := 0
	if total > 0 {
		filled = counts.Done() * barWidth / total
	}
	if filled > barWidth {
		filled = barWidth
	}

	fmt.Fprint(b, term.ClearLine)
	b.WriteString(r.symbols.Begin)
	b.WriteString(strings.Repeat(r.symbols.Progress, filled))
	b.WriteString(strings.Repeat(".", barWidth-filled))
	b.WriteString(r.symbols.End)
	b.WriteString("\n")
}

func (r *Renderer) writeRow(b *strings.Builder, id int, idle bool, host string, state job.State, lastLine string, since time.Time, width int) {
	fmt.Fprint(b, term.ClearLine)
	if idle {
		fmt.Fprintf(b, "[%2d] idle\n", id)
		return
	}

	elapsed := time.Duration(0)
	if !since.IsZero() {
		elapsed = time.Since(since).Truncate(time.Second)
	}
	glyph := term.StateGlyph(r.symbols, string(state))

	line := fmt.Sprintf("[%2d] %s %-8s %s %s", id, host, elapsed, glyph, lastLine)
	if len(line) > width {
		line = line[:width]
	}
	b.WriteString(line)
	b.WriteString("\n")
}

// Height returns the number of rows the last Draw call wrote, so a driver
// that wants to print a trailing summary below the live frame knows how far
// to move the cursor first.
func (r *Renderer) Height() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.lastLines
}
