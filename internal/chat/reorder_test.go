package chat

import (
	"testing"
	"time"
)

func seqs(events []LiveEvent) []uint64 {
	out := make([]uint64, len(events))
	for i, e := range events {
		out[i] = e.Seq
	}
	return out
}

func equalSeqs(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestReordererInOrder(t *testing.T) {
	r := NewReorderer(time.Second)
	for i := uint64(1); i <= 3; i++ {
		got := r.Push(LiveEvent{Seq: i})
		if !equalSeqs(seqs(got), []uint64{i}) {
			t.Fatalf("Push(%d) = %v", i, seqs(got))
		}
	}
}

func TestReordererFillsGap(t *testing.T) {
	r := NewReorderer(time.Second)
	if got := r.Push(LiveEvent{Seq: 1}); len(got) != 1 {
		t.Fatal("seq 1 not released")
	}
	if got := r.Push(LiveEvent{Seq: 3}); len(got) != 0 {
		t.Fatalf("seq 3 released early: %v", seqs(got))
	}
	if got := r.Push(LiveEvent{Seq: 4}); len(got) != 0 {
		t.Fatalf("seq 4 released early: %v", seqs(got))
	}
	got := r.Push(LiveEvent{Seq: 2})
	if !equalSeqs(seqs(got), []uint64{2, 3, 4}) {
		t.Errorf("released = %v, want [2 3 4]", seqs(got))
	}
	if r.Pending() != 0 {
		t.Errorf("pending = %d", r.Pending())
	}
}

func TestReordererDropsDuplicates(t *testing.T) {
	r := NewReorderer(time.Second)
	r.Push(LiveEvent{Seq: 1})
	if got := r.Push(LiveEvent{Seq: 1}); len(got) != 0 {
		t.Error("duplicate of released seq not dropped")
	}
	r.Push(LiveEvent{Seq: 3})
	if got := r.Push(LiveEvent{Seq: 3}); len(got) != 0 {
		t.Error("duplicate of buffered seq not dropped")
	}
	if r.Pending() != 1 {
		t.Errorf("pending = %d, want 1", r.Pending())
	}
}

func TestReordererSkipsExpiredGap(t *testing.T) {
	now := time.Unix(1000, 0)
	r := NewReorderer(time.Second)
	r.now = func() time.Time { return now }

	r.Push(LiveEvent{Seq: 1})
	r.Push(LiveEvent{Seq: 3})
	r.Push(LiveEvent{Seq: 5})

	now = now.Add(500 * time.Millisecond)
	if got := r.Flush(); len(got) != 0 {
		t.Fatalf("flushed before timeout: %v", seqs(got))
	}

	now = now.Add(600 * time.Millisecond)
	got := r.Flush()
	if !equalSeqs(seqs(got), []uint64{3}) {
		t.Fatalf("flush = %v, want [3]", seqs(got))
	}

	now = now.Add(1100 * time.Millisecond)
	got = r.Flush()
	if !equalSeqs(seqs(got), []uint64{5}) {
		t.Fatalf("second flush = %v, want [5]", seqs(got))
	}
	if got := r.Push(LiveEvent{Seq: 2}); len(got) != 0 {
		t.Error("skipped seq delivered late")
	}
}

func TestReordererResetAndUnsequenced(t *testing.T) {
	r := NewReorderer(time.Second)
	r.Push(LiveEvent{Seq: 1})
	r.Push(LiveEvent{Seq: 2})
	r.Push(LiveEvent{Seq: 9})
	r.Reset()
	if r.Pending() != 0 {
		t.Errorf("pending after reset = %d", r.Pending())
	}
	if got := r.Push(LiveEvent{Seq: 1}); len(got) != 1 {
		t.Error("seq 1 after reset not released")
	}
	if got := r.Push(LiveEvent{Type: EventPresence}); len(got) != 1 {
		t.Error("unsequenced event not passed through")
	}
}
