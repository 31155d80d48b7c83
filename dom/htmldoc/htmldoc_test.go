package htmldoc

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/horosmeet/dom"
)

var (
	_ dom.Document = (*Document)(nil)
	_ dom.Element  = (*Element)(nil)
)

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	d, err := ParseString(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestQueryAll_Group(t *testing.T) {
	d := mustParse(t, `<body>
		<div role="dialog">a</div>
		<span role="alert">b</span>
		<p role="status">c</p>
		<div role="alertdialog">d</div>
	</body>`)
	ctx := context.Background()

	els, err := d.QueryAll(ctx, `[role="dialog"], [role="alert"], [role="alertdialog"]`)
	if err != nil {
		t.Fatal(err)
	}
	if len(els) != 3 {
		t.Fatalf("got %d elements, want 3", len(els))
	}
	text, _ := els[2].Text(ctx)
	if text != "d" {
		t.Errorf("document order: third text = %q, want d", text)
	}
}

func TestQueryAll_BadSelector(t *testing.T) {
	d := mustParse(t, `<body></body>`)
	if _, err := d.QueryAll(context.Background(), `[[[`); err == nil {
		t.Fatal("expected selector error")
	}
}

func TestQuery_Absent(t *testing.T) {
	d := mustParse(t, `<body><button>x</button></body>`)
	el, ok, err := d.Query(context.Background(), `button[jsname="hw0c9"][data-is-muted]`)
	if err != nil || ok || el != nil {
		t.Fatalf("got %v %v %v, want nothing", el, ok, err)
	}
}

func TestTextContainers(t *testing.T) {
	d := mustParse(t, `<body>
		<div id="a"><span id="b">  Microphone muted by system  </span></div>
		<p id="c">unrelated</p>
	</body>`)
	ctx := context.Background()

	els, err := d.TextContainers(ctx, []string{"muted by system"})
	if err != nil {
		t.Fatal(err)
	}
	if len(els) != 1 {
		t.Fatalf("got %d containers, want 1", len(els))
	}
	id, _, _ := els[0].Attr(ctx, "id")
	if id != "b" {
		t.Errorf("container id = %q, want b", id)
	}
}

func TestHide(t *testing.T) {
	d := mustParse(t, `<body><div class="x" style="color: red; display: block">y</div></body>`)
	ctx := context.Background()

	el, ok, _ := d.Query(ctx, "div")
	if !ok {
		t.Fatal("div not found")
	}
	if err := el.Hide(ctx, dom.DefaultMarker); err != nil {
		t.Fatal(err)
	}
	if err := el.Hide(ctx, dom.DefaultMarker); err != nil {
		t.Fatal(err)
	}

	cls, _, _ := el.Attr(ctx, "class")
	if cls != "x muteguard-hidden" {
		t.Errorf("class = %q", cls)
	}
	style, _, _ := el.Attr(ctx, "style")
	for _, want := range []string{"color: red", "display: none !important", "opacity: 0 !important"} {
		if !strings.Contains(style, want) {
			t.Errorf("style %q missing %q", style, want)
		}
	}
	if strings.Count(style, "display") != 1 {
		t.Errorf("display declared more than once: %q", style)
	}
	aria, _, _ := el.Attr(ctx, "aria-hidden")
	if aria != "true" {
		t.Errorf("aria-hidden = %q", aria)
	}
}

func TestPosition(t *testing.T) {
	d := mustParse(t, `<body><div id="f" style="position: fixed !important; top: 0"></div><div id="s"></div></body>`)
	ctx := context.Background()

	f, _, _ := d.Query(ctx, "#f")
	s, _, _ := d.Query(ctx, "#s")
	if p, _ := f.Position(ctx); p != "fixed" {
		t.Errorf("#f position = %q, want fixed", p)
	}
	if p, _ := s.Position(ctx); p != "static" {
		t.Errorf("#s position = %q, want static", p)
	}
}

func TestParent_StopsAtHTML(t *testing.T) {
	d := mustParse(t, `<body></body>`)
	ctx := context.Background()

	el, _, _ := d.Query(ctx, "html")
	if _, ok, _ := el.Parent(ctx); ok {
		t.Error("html element should have no element parent")
	}
}

func TestInjectStyle_Once(t *testing.T) {
	d := mustParse(t, `<html><head></head><body></body></html>`)
	ctx := context.Background()

	ok, err := d.InjectStyle(ctx, "muteguard-styles", ".x{}")
	if err != nil || !ok {
		t.Fatalf("first inject: %v %v", ok, err)
	}
	ok, err = d.InjectStyle(ctx, "muteguard-styles", ".x{}")
	if err != nil || ok {
		t.Fatalf("second inject: %v %v", ok, err)
	}

	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), `id="muteguard-styles"`); n != 1 {
		t.Errorf("style elements = %d, want 1", n)
	}
}

func TestHasBody_Late(t *testing.T) {
	d := New(&html.Node{Type: html.DocumentNode})
	ctx := context.Background()

	if ok, _ := d.HasBody(ctx); ok {
		t.Fatal("empty document reports a body")
	}
	d.AppendBody()
	if ok, _ := d.HasBody(ctx); !ok {
		t.Fatal("body not found after AppendBody")
	}
}

func TestClick_Hook(t *testing.T) {
	d := mustParse(t, `<body><button data-is-muted="true">m</button></body>`)
	ctx := context.Background()
	d.OnClick = func(e *Element) { e.SetAttr("data-is-muted", "false") }

	btn, _, _ := d.Query(ctx, "button")
	if err := btn.Click(ctx); err != nil {
		t.Fatal(err)
	}
	if d.Clicks() != 1 {
		t.Errorf("clicks = %d, want 1", d.Clicks())
	}
	if v, _, _ := btn.Attr(ctx, "data-is-muted"); v != "false" {
		t.Errorf("data-is-muted = %q, want false", v)
	}
}

func TestAppendHTML(t *testing.T) {
	d := mustParse(t, `<body><div id="root"></div></body>`)
	ctx := context.Background()
	root, _, _ := d.Query(ctx, "#root")
	if err := root.(*Element).AppendHTML(`<p role="alert">one</p><p>two</p>`); err != nil {
		t.Fatal(err)
	}
	els, err := d.QueryAll(ctx, "#root > p")
	if err != nil || len(els) != 2 {
		t.Fatalf("got %d children, err %v", len(els), err)
	}
	if role, _, _ := els[0].Attr(ctx, "role"); role != "alert" {
		t.Errorf("role = %q", role)
	}
}

func TestRelease_TracksHandles(t *testing.T) {
	d := mustParse(t, `<body><div><p>a</p><p>b</p></div></body>`)
	ctx := context.Background()

	els, _ := d.QueryAll(ctx, "p")
	first, _, _ := d.Query(ctx, "p")
	parent, _, _ := els[0].Parent(ctx)
	if live := d.Live(); live != 4 {
		t.Fatalf("live = %d, want 4", live)
	}

	for _, el := range append(els, first, parent) {
		el.Release(ctx)
	}
	parent.Release(ctx)
	if live := d.Live(); live != 0 {
		t.Fatalf("live = %d after release, want 0", live)
	}
}
