// Package paginate clamps page numbers for list views.
package paginate

// Pager describes one page over Total items.
type Pager struct {
	Page    int
	PerPage int
	Total   int
}

// New returns a pager with Page already clamped.
func New(page, perPage, total int) Pager {
	p := Pager{Page: page, PerPage: perPage, Total: total}
	p.Page = p.Clamp(page)
	return p
}

// TotalPages is never less than one, even for an empty list.
func (p Pager) TotalPages() int {
	per := p.PerPage
	if per <= 0 {
		per = 1
	}
	if p.Total <= 0 {
		return 1
	}
	return (p.Total + per - 1) / per
}

// Clamp forces page into [1, TotalPages].
func (p Pager) Clamp(page int) int {
	if page < 1 {
		return 1
	}
	if n := p.TotalPages(); page > n {
		return n
	}
	return page
}

// Next returns the following page, clamped.
func (p Pager) Next() int { return p.Clamp(p.Page + 1) }

// Prev returns the preceding page, clamped.
func (p Pager) Prev() int { return p.Clamp(p.Page - 1) }

// Window returns up to width consecutive page numbers centered on the current page.
func (p Pager) Window(width int) []int {
	total := p.TotalPages()
	if width <= 0 {
		return nil
	}
	if width > total {
		width = total
	}
	start := p.Clamp(p.Page) - width/2
	if start < 1 {
		start = 1
	}
	if start+width-1 > total {
		start = total - width + 1
	}
	pages := make([]int, width)
	for i := range pages {
		pages[i] = start + i
	}
	return pages
}

// Bounds returns the [lo, hi) slice bounds of the current page.
func (p Pager) Bounds() (int, int) {
	per := p.PerPage
	if per <= 0 {
		per = 1
	}
	total := max(p.Total, 0)
	lo := (p.Clamp(p.Page) - 1) * per
	if lo > total {
		lo = total
	}
	return lo, min(lo+per, total)
}

// Slice returns the items on the pager's page. Total is taken from len(items).
func Slice[T any](items []T, page, perPage int) ([]T, Pager) {
	p := New(page, perPage, len(items))
	lo, hi := p.Bounds()
	return items[lo:hi], p
}
