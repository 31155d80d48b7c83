// Package dom defines the small slice of a browser document that muteguard
// reads and mutates. Two implementations exist: a live page driven over the
// DevTools protocol (muteguard/internal/pagedom) and a parsed HTML snapshot
// (dom/htmldoc).
//
// Absence is not an error: lookups that find nothing return an empty result
// and a nil error. Errors are reserved for transport or evaluation failures.
package dom

import "context"

// Element is a handle on one element of a Document.
type Element interface {
	// Attr returns the attribute value and whether it is present.
	Attr(ctx context.Context, name string) (string, bool, error)
	// Text returns the element's text content (all descendant text).
	Text(ctx context.Context) (string, error)
	// Position returns the computed CSS position ("static", "fixed", ...).
	Position(ctx context.Context) (string, error)
	// Parent returns the parent element, or ok=false at the root.
	Parent(ctx context.Context) (parent Element, ok bool, err error)
	// HasClass reports whether the class list contains name.
	HasClass(ctx context.Context, name string) (bool, error)
	// Hide applies the hidden marker described by m.
	Hide(ctx context.Context, m Marker) error
	// Click invokes the element's primary activation.
	Click(ctx context.Context) error
	// Release frees the handle. Every Element returned by a Document or by
	// Parent must be released once the caller is done with it.
	Release(ctx context.Context) error
}

// Document is a live or snapshot DOM.
type Document interface {
	// HasBody reports whether document.body exists yet.
	HasBody(ctx context.Context) (bool, error)
	// QueryAll returns every element matching a CSS selector, in document order.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	// Query returns the first element matching selector.
	Query(ctx context.Context, selector string) (Element, bool, error)
	// TextContainers returns the parent element of every text node under
	// body whose content contains one of phrases. A parent holding several
	// matching text nodes may appear more than once.
	TextContainers(ctx context.Context, phrases []string) ([]Element, error)
	// InjectStyle inserts a <style id=id> element holding css unless an
	// element with that id already exists. It reports whether it inserted.
	InjectStyle(ctx context.Context, id, css string) (bool, error)
}

// Marker is the hidden state applied to suppressed elements: a class, a
// set of inline style overrides (all !important) and aria-hidden="true".
type Marker struct {
	Class  string
	Styles []Style
}

// Style is one inline CSS property override.
type Style struct {
	Property string
	Value    string
}

// DefaultMarker is the marker muteguard applies to overlays.
var DefaultMarker = Marker{
	Class: "muteguard-hidden",
	Styles: []Style{
		{"display", "none"},
		{"visibility", "hidden"},
		{"opacity", "0"},
		{"pointer-events", "none"},
	},
}

// CSS renders the marker as a style-sheet rule for its class.
func (m Marker) CSS() string {
	s := "." + m.Class + " {\n"
	for _, st := range m.Styles {
		s += "  " + st.Property + ": " + st.Value + " !important;\n"
	}
	return s + "}\n"
}
