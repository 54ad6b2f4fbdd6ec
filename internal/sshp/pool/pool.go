// Package pool implements the scheduler / pool controller of spec.md 4.4:
// it owns the host queue, the worker slots, and the single mutual-exclusion
// region spec.md 5 requires around paused/aborted/stopping flags, the queue
// head, and each slot's current Job.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/tjper/sshp/internal/sshp/job"
)

// Slot is one worker's position in the pool (spec.md 3's WorkerSlot). A
// Slot's kill_requested flag lives on its current Job (Job.RequestKill),
// since a kill always targets whatever occupies the slot at request time;
// Slot itself only tracks which Job that is and when it started.
type Slot struct {
	ID int

	mutex     sync.Mutex
	current   *job.Job
	startedAt time.Time
}

// Current returns the Job currently occupying the slot, or nil if idle.
func (s *Slot) Current() *job.Job {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.current
}

// StartedAt returns the instant the slot's current Job was claimed.
func (s *Slot) StartedAt() time.Time {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.startedAt
}

func (s *Slot) set(j *job.Job) {
	s.mutex.Lock()
	s.current = j
	s.startedAt = time.Now()
	s.mutex.Unlock()
}

func (s *Slot) clear() {
	s.mutex.Lock()
	s.current = nil
	s.mutex.Unlock()
}

// Pool is the scheduler / pool controller: the single owner of the host
// queue and the pool-level flags, per spec.md 4.4/5.
type Pool struct {
	mutex sync.Mutex
	wake  *Broadcaster

	paused   bool
	aborted  bool
	stopping bool

	queue []*job.Job
	head  int

	slots    []*Slot
	registry *job.Registry
}

// New creates a Pool with the given concurrency width and job queue, in the
// order the (out-of-scope) host-resolution collaborator produced.
func New(parallel int, jobs []*job.Job, registry *job.Registry) *Pool {
	slots := make([]*Slot, parallel)
	for i := range slots {
		slots[i] = &Slot{ID: i}
	}
	for _, j := range jobs {
		registry.Add(j)
	}
	return &Pool{
		wake:     NewBroadcaster(),
		queue:    jobs,
		slots:    slots,
		registry: registry,
	}
}

// Slots returns every worker slot, for the worker goroutines and the
// renderer to iterate over.
func (p *Pool) Slots() []*Slot {
	return p.slots
}

// Registry returns the Job registry backing this pool.
func (p *Pool) Registry() *job.Registry {
	return p.registry
}

// Pause sets the paused flag. Idempotent. Observed at each worker's next
// claim attempt, never mid-job (spec.md 5).
func (p *Pool) Pause() {
	p.mutex.Lock()
	p.paused = true
	p.mutex.Unlock()
	p.wake.Notify()
}

// Resume clears the paused flag and wakes every worker suspended on it.
// Idempotent.
func (p *Pool) Resume() {
	p.mutex.Lock()
	p.paused = false
	p.mutex.Unlock()
	p.wake.Notify()
}

// Abort sets the aborted flag. Idempotent. Prevents further spawns; already
// running jobs are unaffected until separately killed (spec.md 5).
func (p *Pool) Abort() {
	p.mutex.Lock()
	p.aborted = true
	p.mutex.Unlock()
	p.wake.Notify()
}

// Stop sets the stopping flag, causing every worker to exit at its next
// claim attempt regardless of queue state. Used once drain is otherwise
// complete, and by fatal-error paths.
func (p *Pool) Stop() {
	p.mutex.Lock()
	p.stopping = true
	p.mutex.Unlock()
	p.wake.Notify()
}

// Paused, Aborted, and Stopping report the current pool-level flags.
func (p *Pool) Paused() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.paused
}

func (p *Pool) Aborted() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.aborted
}

func (p *Pool) Stopping() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.stopping
}

// Kill requests termination of whatever Job currently occupies slotID. It
// is a no-op if the slot is idle or slotID is out of range.
func (p *Pool) Kill(slotID int) {
	p.mutex.Lock()
	var slot *Slot
	if slotID >= 0 && slotID < len(p.slots) {
		slot = p.slots[slotID]
	}
	p.mutex.Unlock()
	if slot == nil {
		return
	}
	if j := slot.Current(); j != nil {
		j.RequestKill()
	}
}

// KillAllRunning requests termination of every slot's current Job. Used by
// the combined Ctrl-C handler (spec.md 4.5): abort plus kill all running
// slots.
func (p *Pool) KillAllRunning() {
	for _, slot := range p.slots {
		if j := slot.Current(); j != nil {
			j.RequestKill()
		}
	}
}

// ClaimResult indicates what ClaimNext decided for this call.
type ClaimResult int

const (
	// ClaimExit tells the worker to stop its loop entirely (stopping, or the
	// queue is exhausted with nothing left to abort).
	ClaimExit ClaimResult = iota
	// ClaimJob hands the worker a Job to spawn.
	ClaimJob
)

// ClaimNext implements the worker loop contract of spec.md 4.3, steps 1-4:
// exit if stopping; suspend on pause; drain-and-abort queued jobs without
// spawning while aborted; otherwise atomically claim the next queued Job.
// slotID identifies the calling worker's slot, so a successful claim can
// record slot occupancy under the same lock as the queue-head advance.
func (p *Pool) ClaimNext(ctx context.Context, slotID int) (*job.Job, ClaimResult) {
	for {
		p.mutex.Lock()

		if p.stopping {
			p.mutex.Unlock()
			return nil, ClaimExit
		}

		if p.aborted {
			var drained []*job.Job
			for p.head < len(p.queue) {
				drained = append(drained, p.queue[p.head])
				p.head++
			}
			p.mutex.Unlock()
			for _, j := range drained {
				j.Abort()
			}
			if len(drained) > 0 {
				p.wake.Notify()
			}
			return nil, ClaimExit
		}

		if p.paused {
			p.mutex.Unlock()
			if err := p.wake.Wait(ctx); err != nil {
				return nil, ClaimExit
			}
			continue
		}

		if p.head >= len(p.queue) {
			p.mutex.Unlock()
			return nil, ClaimExit
		}

		j := p.queue[p.head]
		p.head++
		slot := p.slots[slotID]
		p.mutex.Unlock()

		slot.set(j)
		return j, ClaimJob
	}
}

// Release clears slotID's occupancy once its Job reaches a terminal state,
// and wakes anyone waiting on pool state (e.g. a renderer-side drain poll).
func (p *Pool) Release(slotID int) {
	p.slots[slotID].clear()
	p.wake.Notify()
}

// Drained reports whether every Job in the registry has reached a terminal
// state.
func (p *Pool) Drained() bool {
	counts := p.registry.Counts()
	return counts.Queued == 0 && counts.Running == 0
}
