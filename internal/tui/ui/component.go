package ui

import "github.com/rivo/tview"

// Component is a page that can be pushed on the page stack.
type Component interface {
	tview.Primitive
	// Name is the page key and breadcrumb label.
	Name() string
	// FocusTarget returns the primitive that should receive focus when the page is shown.
	FocusTarget() tview.Primitive
}
