package storefront

import (
	"context"
	"fmt"
)

// Selector identifies a control in a UI whose markup is unstable. CSS and
// Role narrow the candidates, Text filters them by a case-insensitive
// regular expression over their visible text (or accessible name for role
// queries). A Selector with only Text matches the innermost elements whose
// text matches. Index picks one match: 0 is the first, negative values count
// from the end.
type Selector struct {
	Name   string
	CSS    string
	Role   string
	Text   string
	Within *Selector
	Index  int
}

// Nth returns the selector narrowed to the i-th match.
func (s Selector) Nth(i int) Selector {
	s.Index = i
	return s
}

// Last returns the selector narrowed to the final match.
func (s Selector) Last() Selector {
	return s.Nth(-1)
}

// In scopes the selector to the first match of parent.
func (s Selector) In(parent Selector) Selector {
	p := parent
	s.Within = &p
	return s
}

func (s Selector) String() string {
	if s.Index == 0 {
		return s.Name
	}
	return fmt.Sprintf("%s[%d]", s.Name, s.Index)
}

// Page is the capability the upload protocol needs from a live, already
// authenticated browser tab. Implementations evaluate selectors against the
// current document on every call; nothing is cached between calls.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)

	// Count reports how many elements match, ignoring Index.
	Count(ctx context.Context, sel Selector) (int, error)
	// Visible reports whether the selected element exists and is rendered.
	Visible(ctx context.Context, sel Selector) (bool, error)
	Text(ctx context.Context, sel Selector) (string, error)
	Value(ctx context.Context, sel Selector) (string, error)
	Attr(ctx context.Context, sel Selector, name string) (string, error)

	// Click clicks the selected element. With force the element is clicked
	// even when covered or not considered visible.
	Click(ctx context.Context, sel Selector, force bool) error
	Fill(ctx context.Context, sel Selector, value string) error
	Press(ctx context.Context, sel Selector, key string) error

	// Reveal forces a hidden element visible and enabled.
	Reveal(ctx context.Context, sel Selector) error
	// Hide hides every matching element; no match is not an error.
	Hide(ctx context.Context, sel Selector) error
	SetFiles(ctx context.Context, sel Selector, paths ...string) error

	Clipboard(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, path string) error
}

// Opener starts a fresh browser context carrying the stored storefront
// session. The returned release func closes it.
type Opener interface {
	Open(ctx context.Context) (Page, func(), error)
}

const keyEnter = "Enter"
