package mailbox

import "sync"

// Mailbox is a single-slot buffer where the latest job always wins.
// It is NOT a queue. It holds at most one pending job.
// Put() overwrites any existing job. Take() blocks until a job is available
// or the mailbox is closed.
type Mailbox[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	job    *T
	closed bool
}

// New creates an empty mailbox.
func New[T any]() *Mailbox[T] {
	m := &Mailbox[T]{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Put stores a job in the mailbox, replacing any existing job.
// It never blocks. Put on a closed mailbox is dropped and reports false.
func (m *Mailbox[T]) Put(j T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.job = &j
	m.mu.Unlock()
	m.cond.Signal() // wake up worker if waiting
	return true
}

// Take blocks until a job is available, then returns it and clears the slot.
// ok is false once the mailbox is closed; a job pending at Close is discarded.
func (m *Mailbox[T]) Take() (job T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.job == nil && !m.closed {
		m.cond.Wait()
	}
	if m.closed {
		return job, false
	}

	j := *m.job
	m.job = nil
	return j, true
}

// HasJob reports whether a job is currently waiting.
func (m *Mailbox[T]) HasJob() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.job != nil
}

// Close wakes every Take and makes later ones return immediately.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.job = nil
	m.mu.Unlock()
	m.cond.Broadcast()
}
