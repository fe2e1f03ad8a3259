package chat

import (
	"slices"
	"time"
)

// DefaultGapTimeout is how long the reorderer waits for a missing sequence
// number before skipping it.
const DefaultGapTimeout = time.Second

// Reorderer releases live events in sequence order. Sequences are per
// connection; call Reset whenever the live channel reconnects.
type Reorderer struct {
	gap      time.Duration
	now      func() time.Time
	last     uint64
	pending  map[uint64]LiveEvent
	gapSince time.Time
}

// NewReorderer returns a reorderer that gives up on a gap after gap.
func NewReorderer(gap time.Duration) *Reorderer {
	if gap <= 0 {
		gap = DefaultGapTimeout
	}
	return &Reorderer{gap: gap, now: time.Now, pending: make(map[uint64]LiveEvent)}
}

// Push accepts one event and returns every event now ready, in order.
// Unsequenced events pass straight through; duplicates are dropped.
func (r *Reorderer) Push(evt LiveEvent) []LiveEvent {
	if evt.Seq == 0 {
		return []LiveEvent{evt}
	}
	if evt.Seq <= r.last {
		return nil
	}
	if _, dup := r.pending[evt.Seq]; dup {
		return nil
	}
	r.pending[evt.Seq] = evt
	return r.drain()
}

// Flush releases buffered events if the current gap has been open longer
// than the gap timeout.
func (r *Reorderer) Flush() []LiveEvent {
	return r.drain()
}

// Pending returns the number of events held back by a gap.
func (r *Reorderer) Pending() int { return len(r.pending) }

// Reset forgets all sequence state.
func (r *Reorderer) Reset() {
	r.last = 0
	r.gapSince = time.Time{}
	clear(r.pending)
}

func (r *Reorderer) drain() []LiveEvent {
	var out []LiveEvent
	for {
		for {
			evt, ok := r.pending[r.last+1]
			if !ok {
				break
			}
			delete(r.pending, r.last+1)
			r.last++
			out = append(out, evt)
		}
		if len(r.pending) == 0 {
			r.gapSince = time.Time{}
			return out
		}
		if r.gapSince.IsZero() || len(out) > 0 {
			r.gapSince = r.now()
		}
		if r.now().Sub(r.gapSince) < r.gap {
			return out
		}
		// gap expired: jump to the lowest buffered sequence
		seqs := make([]uint64, 0, len(r.pending))
		for seq := range r.pending {
			seqs = append(seqs, seq)
		}
		r.last = slices.Min(seqs) - 1
		r.gapSince = time.Time{}
	}
}
