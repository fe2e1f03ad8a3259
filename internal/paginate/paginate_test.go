package paginate

import (
	"slices"
	"testing"
)

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total, per, want int
	}{
		{0, 20, 1},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{100, 10, 10},
		{5, 0, 5},
		{-3, 10, 1},
	}
	for _, tt := range tests {
		p := Pager{PerPage: tt.per, Total: tt.total}
		if got := p.TotalPages(); got != tt.want {
			t.Errorf("TotalPages(total=%d, per=%d) = %d, want %d", tt.total, tt.per, got, tt.want)
		}
	}
}

func TestClampNeverLeavesRange(t *testing.T) {
	for total := 0; total <= 45; total++ {
		for _, per := range []int{1, 7, 20} {
			p := Pager{PerPage: per, Total: total}
			n := p.TotalPages()
			for page := -5; page <= n+5; page++ {
				got := p.Clamp(page)
				if got < 1 || got > n {
					t.Fatalf("Clamp(%d) = %d outside [1, %d] (total=%d per=%d)", page, got, n, total, per)
				}
			}
			q := New(n+10, per, total)
			if q.Next() > n || q.Prev() < 1 {
				t.Fatalf("Next/Prev out of range: %d %d", q.Next(), q.Prev())
			}
			for _, w := range q.Window(5) {
				if w < 1 || w > n {
					t.Fatalf("window page %d outside [1, %d]", w, n)
				}
			}
		}
	}
}

func TestWindow(t *testing.T) {
	tests := []struct {
		name  string
		p     Pager
		width int
		want  []int
	}{
		{"centered", Pager{Page: 5, PerPage: 1, Total: 10}, 3, []int{4, 5, 6}},
		{"start", Pager{Page: 1, PerPage: 1, Total: 10}, 3, []int{1, 2, 3}},
		{"end", Pager{Page: 10, PerPage: 1, Total: 10}, 3, []int{8, 9, 10}},
		{"wider than total", Pager{Page: 1, PerPage: 1, Total: 2}, 5, []int{1, 2}},
		{"empty list", Pager{Page: 3, PerPage: 10, Total: 0}, 5, []int{1}},
		{"zero width", Pager{Page: 1, PerPage: 1, Total: 3}, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Window(tt.width); !slices.Equal(got, tt.want) {
				t.Errorf("Window(%d) = %v, want %v", tt.width, got, tt.want)
			}
		})
	}
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	got, p := Slice(items, 2, 2)
	if !slices.Equal(got, []int{3, 4}) || p.Page != 2 {
		t.Errorf("page 2 = %v (%+v)", got, p)
	}
	got, p = Slice(items, 99, 2)
	if !slices.Equal(got, []int{5}) || p.Page != 3 {
		t.Errorf("page 99 = %v (%+v)", got, p)
	}
	got, p = Slice([]int(nil), 4, 2)
	if len(got) != 0 || p.Page != 1 {
		t.Errorf("empty = %v (%+v)", got, p)
	}
}
