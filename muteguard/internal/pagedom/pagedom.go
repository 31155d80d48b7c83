// CLAUDE:SUMMARY dom.Document over a live rod page: selectors, XPath text search, inline style marking, JS click.
// Package pagedom implements dom.Document over a live rod page.
package pagedom

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/horosmeet/dom"
)

// Document is a live page.
type Document struct {
	page *rod.Page
}

// New wraps page.
func New(page *rod.Page) *Document {
	return &Document{page: page}
}

func (d *Document) HasBody(ctx context.Context) (bool, error) {
	res, err := d.page.Context(ctx).Eval(`() => !!document.body`)
	if err != nil {
		return false, fmt.Errorf("pagedom: body: %w", err)
	}
	return res.Value.Bool(), nil
}

func (d *Document) QueryAll(ctx context.Context, selector string) ([]dom.Element, error) {
	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("pagedom: query %q: %w", selector, err)
	}
	return wrap(els), nil
}

func (d *Document) Query(ctx context.Context, selector string) (dom.Element, bool, error) {
	has, el, err := d.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, false, fmt.Errorf("pagedom: query %q: %w", selector, err)
	}
	if !has {
		return nil, false, nil
	}
	return &Element{el: el}, true, nil
}

// TextContainers uses an XPath over text nodes under body; rod returns
// the parent element of each match.
func (d *Document) TextContainers(ctx context.Context, phrases []string) ([]dom.Element, error) {
	if len(phrases) == 0 {
		return nil, nil
	}
	els, err := d.page.Context(ctx).ElementsX(textXPath(phrases))
	if err != nil {
		return nil, fmt.Errorf("pagedom: text search: %w", err)
	}
	return wrap(els), nil
}

func (d *Document) InjectStyle(ctx context.Context, id, css string) (bool, error) {
	res, err := d.page.Context(ctx).Eval(`(id, css) => {
		if (document.getElementById(id)) return false;
		const style = document.createElement('style');
		style.id = id;
		style.textContent = css;
		(document.head || document.documentElement).appendChild(style);
		return true;
	}`, id, css)
	if err != nil {
		return false, fmt.Errorf("pagedom: inject style: %w", err)
	}
	return res.Value.Bool(), nil
}

// textXPath selects the parent of every body text node containing one of
// phrases. Phrases are quoted with concat() when they hold both quote
// kinds.
func textXPath(phrases []string) string {
	conds := make([]string, len(phrases))
	for i, p := range phrases {
		conds[i] = "contains(., " + xpathLiteral(p) + ")"
	}
	return "//body//text()[" + strings.Join(conds, " or ") + "]/.."
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(quoted, `, "'", `) + ")"
}

func wrap(els rod.Elements) []dom.Element {
	out := make([]dom.Element, len(els))
	for i, el := range els {
		out[i] = &Element{el: el}
	}
	return out
}

// Element is a live element handle.
type Element struct {
	el *rod.Element
}

func (e *Element) Attr(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(`() => this.textContent || ""`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *Element) Position(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(`() => getComputedStyle(this).position`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *Element) Parent(ctx context.Context) (dom.Element, bool, error) {
	p, err := e.el.Context(ctx).Parent()
	if err != nil {
		var notFound *rod.ElementNotFoundError
		if errors.As(err, &notFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &Element{el: p}, true, nil
}

func (e *Element) HasClass(ctx context.Context, name string) (bool, error) {
	res, err := e.el.Context(ctx).Eval(`(c) => this.classList.contains(c)`, name)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (e *Element) Hide(ctx context.Context, m dom.Marker) error {
	props := make([]string, 0, 2*len(m.Styles))
	for _, st := range m.Styles {
		props = append(props, st.Property, st.Value)
	}
	_, err := e.el.Context(ctx).Eval(`(cls, props) => {
		this.classList.add(cls);
		for (let i = 0; i + 1 < props.length; i += 2) {
			this.style.setProperty(props[i], props[i + 1], 'important');
		}
		this.setAttribute('aria-hidden', 'true');
	}`, m.Class, props)
	return err
}

// Release frees the element's remote object in the renderer.
func (e *Element) Release(ctx context.Context) error {
	return e.el.Context(ctx).Release()
}

// Click calls the element's click(), which dispatches the same activation
// the page's own handlers listen for, without moving the real mouse.
func (e *Element) Click(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(`() => this.click()`)
	return err
}
