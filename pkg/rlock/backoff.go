package rlock

import "time"

// Backoff is a bounded exponential spin-then-yield helper shared by every
// retry loop in the module: optimistic readers and versioned-lock
// acquirers. Spin-pause for small counts, then
// sleep for an exponentially growing, capped duration — the same two-phase
// shape as a seqlock reader backoff, just without a fixed retry ceiling
// since C6 requires retries to be unbounded in the abstract model.
type Backoff struct {
	attempt int
}

const (
	spinThreshold  = 4
	initialBackoff = 50 * time.Microsecond
	maxBackoff     = 1 * time.Millisecond
)

// Wait pauses for a duration that grows with the number of prior calls,
// spinning (Gosched) for the first few attempts and sleeping thereafter.
func (b *Backoff) Wait() {
	b.attempt++
	if b.attempt <= spinThreshold {
		procYield()
		return
	}
	d := min(initialBackoff<<uint(b.attempt-spinThreshold-1), maxBackoff)
	time.Sleep(d)
}

// Reset clears the attempt counter for reuse across independent retry loops.
func (b *Backoff) Reset() { b.attempt = 0 }
