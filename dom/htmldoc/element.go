package htmldoc

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/horosmeet/dom"
)

// Element is a node of a Document.
type Element struct {
	doc      *Document
	n        *html.Node
	released bool
}

// Node returns the wrapped html node.
func (e *Element) Node() *html.Node { return e.n }

// SetAttr sets an attribute, replacing any previous value.
func (e *Element) SetAttr(name, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	setAttr(e.n, name, value)
}

// RemoveAttr deletes an attribute if present.
func (e *Element) RemoveAttr(name string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	kept := e.n.Attr[:0]
	for _, a := range e.n.Attr {
		if a.Key != name {
			kept = append(kept, a)
		}
	}
	e.n.Attr = kept
}

// SetText replaces all children with a single text node.
func (e *Element) SetText(text string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for c := e.n.FirstChild; c != nil; {
		next := c.NextSibling
		e.n.RemoveChild(c)
		c = next
	}
	e.n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// AppendHTML parses fragment in the context of e and appends the result
// as e's last children.
func (e *Element) AppendHTML(fragment string) error {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), e.n)
	if err != nil {
		return fmt.Errorf("htmldoc: parse fragment: %w", err)
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for _, n := range nodes {
		e.n.AppendChild(n)
	}
	return nil
}

func (e *Element) Attr(_ context.Context, name string) (string, bool, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	v, ok := attr(e.n, name)
	return v, ok, nil
}

func (e *Element) Text(_ context.Context) (string, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	var b strings.Builder
	textContent(&b, e.n)
	return b.String(), nil
}

func (e *Element) Position(_ context.Context) (string, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	style, _ := attr(e.n, "style")
	for _, decl := range parseStyle(style) {
		if decl.Property == "position" {
			return strings.TrimSpace(strings.TrimSuffix(decl.Value, "!important")), nil
		}
	}
	return "static", nil
}

func (e *Element) Parent(_ context.Context) (dom.Element, bool, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	p := e.n.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil, false, nil
	}
	return e.doc.handle(p), true, nil
}

func (e *Element) HasClass(_ context.Context, name string) (bool, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return hasClass(e.n, name), nil
}

func (e *Element) Hide(_ context.Context, m dom.Marker) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	if !hasClass(e.n, m.Class) {
		cls, _ := attr(e.n, "class")
		setAttr(e.n, "class", strings.TrimSpace(cls+" "+m.Class))
	}

	style, _ := attr(e.n, "style")
	decls := parseStyle(style)
	for _, st := range m.Styles {
		decls = setStyle(decls, st.Property, st.Value+" !important")
	}
	setAttr(e.n, "style", renderStyle(decls))
	setAttr(e.n, "aria-hidden", "true")
	return nil
}

// Release drops the handle. Only the first call counts.
func (e *Element) Release(_ context.Context) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if !e.released {
		e.released = true
		e.doc.live--
	}
	return nil
}

func (e *Element) Click(_ context.Context) error {
	e.doc.mu.Lock()
	e.doc.clicks++
	hook := e.doc.OnClick
	e.doc.mu.Unlock()

	if hook != nil {
		hook(e)
	}
	return nil
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func hasClass(n *html.Node, name string) bool {
	cls, _ := attr(n, "class")
	for _, c := range strings.Fields(cls) {
		if c == name {
			return true
		}
	}
	return false
}

func textContent(b *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		textContent(b, c)
	}
}

func parseStyle(s string) []dom.Style {
	var out []dom.Style
	for _, part := range strings.Split(s, ";") {
		prop, val, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		if prop == "" {
			continue
		}
		out = append(out, dom.Style{Property: prop, Value: strings.TrimSpace(val)})
	}
	return out
}

func setStyle(decls []dom.Style, prop, val string) []dom.Style {
	for i := range decls {
		if decls[i].Property == prop {
			decls[i].Value = val
			return decls
		}
	}
	return append(decls, dom.Style{Property: prop, Value: val})
}

func renderStyle(decls []dom.Style) string {
	parts := make([]string, len(decls))
	for i, d := range decls {
		parts[i] = d.Property + ": " + d.Value
	}
	return strings.Join(parts, "; ") + ";"
}
