// CLAUDE:SUMMARY dom.Document over a parsed HTML tree (x/net/html + cascadia), used for snapshots and tests.
// Package htmldoc implements dom.Document over an in-memory HTML tree.
//
// It backs the -check mode (run the suppressor against a saved page) and
// every DOM-facing test. Computed style is approximated by the inline
// style attribute: an element is "fixed" only if its style attribute says
// so.
package htmldoc

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/horosmeet/dom"
)

// Document is a mutable HTML tree. Safe for concurrent use.
type Document struct {
	mu     sync.Mutex
	root   *html.Node
	clicks int
	live   int

	// OnClick, if set, runs after every Click, outside the document lock,
	// so it may mutate the tree (e.g. flip a toggle attribute).
	OnClick func(e *Element)
}

// New wraps an existing tree. root is usually a DocumentNode.
func New(root *html.Node) *Document {
	return &Document{root: root}
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w", err)
	}
	return New(root), nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the underlying tree. Callers must not mutate it while other
// goroutines use the Document.
func (d *Document) Root() *html.Node { return d.root }

// Clicks returns how many times any element was clicked.
func (d *Document) Clicks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clicks
}

// Live returns how many element handles were handed out and not yet
// released.
func (d *Document) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// handle wraps n as a releasable Element. d.mu must be held.
func (d *Document) handle(n *html.Node) *Element {
	d.live++
	return &Element{doc: d, n: n}
}

// Render serialises the current tree.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// AppendBody adds an empty <body> under the <html> element, creating
// <html> if needed. It simulates a page whose body arrives late.
func (d *Document) AppendBody() *Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	htmlEl := findElement(d.root, atom.Html)
	if htmlEl == nil {
		htmlEl = &html.Node{Type: html.ElementNode, DataAtom: atom.Html, Data: "html"}
		d.root.AppendChild(htmlEl)
	}
	body := &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	htmlEl.AppendChild(body)
	return &Element{doc: d, n: body, released: true}
}

func (d *Document) HasBody(_ context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return findElement(d.root, atom.Body) != nil, nil
}

func (d *Document) QueryAll(_ context.Context, selector string) ([]dom.Element, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: selector %q: %w", selector, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	nodes := cascadia.QueryAll(d.root, sel)
	out := make([]dom.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, d.handle(n))
	}
	return out, nil
}

func (d *Document) Query(ctx context.Context, selector string) (dom.Element, bool, error) {
	all, err := d.QueryAll(ctx, selector)
	if err != nil || len(all) == 0 {
		return nil, false, err
	}
	for _, el := range all[1:] {
		el.Release(ctx)
	}
	return all[0], true, nil
}

func (d *Document) TextContainers(_ context.Context, phrases []string) ([]dom.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	body := findElement(d.root, atom.Body)
	if body == nil {
		return nil, nil
	}

	var out []dom.Element
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode && n.Parent != nil && n.Parent.Type == html.ElementNode {
			text := strings.TrimSpace(n.Data)
			for _, p := range phrases {
				if strings.Contains(text, p) {
					out = append(out, d.handle(n.Parent))
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)
	return out, nil
}

func (d *Document) InjectStyle(_ context.Context, id, css string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if findByID(d.root, id) != nil {
		return false, nil
	}

	parent := findElement(d.root, atom.Head)
	if parent == nil {
		parent = findElement(d.root, atom.Html)
	}
	if parent == nil {
		parent = d.root
	}

	style := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Style,
		Data:     "style",
		Attr:     []html.Attribute{{Key: "id", Val: id}},
	}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: css})
	parent.AppendChild(style)
	return true, nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		if v, ok := attr(n, "id"); ok && v == id {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}
