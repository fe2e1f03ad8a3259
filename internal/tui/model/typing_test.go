package model

import (
	"testing"
	"time"
)

func drain(ty *Typist) []bool {
	var out []bool
	for {
		select {
		case v := <-ty.signals:
			out = append(out, v)
		default:
			return out
		}
	}
}

func TestTypistDebouncesBurst(t *testing.T) {
	ty := NewTypist(time.Hour, time.Hour)
	for range 10 {
		ty.Keystroke()
	}
	got := drain(ty)
	if len(got) != 1 || !got[0] {
		t.Fatalf("signals after burst = %v, want [true]", got)
	}
	ty.Stop()
	if got := drain(ty); len(got) != 1 || got[0] {
		t.Fatalf("signals after Stop = %v, want [false]", got)
	}
	ty.Stop()
	if got := drain(ty); len(got) != 0 {
		t.Fatalf("second Stop emitted %v", got)
	}
}

func TestTypistResendsDuringLongBurst(t *testing.T) {
	ty := NewTypist(time.Hour, time.Second)
	now := time.Unix(1000, 0)
	ty.now = func() time.Time { return now }

	ty.Keystroke()
	now = now.Add(500 * time.Millisecond)
	ty.Keystroke()
	now = now.Add(600 * time.Millisecond)
	ty.Keystroke()

	got := drain(ty)
	if len(got) != 2 || !got[0] || !got[1] {
		t.Fatalf("signals = %v, want [true true]", got)
	}
	ty.Stop()
}

func TestTypistStopsWhenIdle(t *testing.T) {
	ty := NewTypist(30*time.Millisecond, time.Hour)
	ty.Keystroke()

	var got []bool
	deadline := time.After(time.Second)
	for len(got) < 2 {
		select {
		case v := <-ty.signals:
			got = append(got, v)
		case <-deadline:
			t.Fatalf("signals = %v, want [true false]", got)
		}
	}
	if !got[0] || got[1] {
		t.Fatalf("signals = %v, want [true false]", got)
	}
}
